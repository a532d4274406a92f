package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cloudpdf/internal/app"
	"cloudpdf/internal/bootstrap"
)

type ingestResult struct {
	File    string `json:"file"`
	ID      uint   `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
	Verdict string `json:"ai_response,omitempty"`
}

func newIngestCmd() *cobra.Command {
	var ownerID uint

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Run local PDF files through the upload pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap.New(cmd.Context(), bootstrap.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.Logger.WithError(err).Warn("close resources failed")
				}
			}()

			var owner *uint
			if ownerID != 0 {
				owner = &ownerID
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				res := ingestFile(cmd, a, path, owner)
				if res.Error != "" {
					failed++
					a.Logger.WithFields(logrus.Fields{"file": path, "error": res.Error}).Warn("ingest failed")
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&ownerID, "owner", 0, "user id recorded as the owner (default: anonymous owner from config)")
	return cmd
}

func ingestFile(cmd *cobra.Command, a *bootstrap.App, path string, owner *uint) ingestResult {
	res := ingestResult{File: path}

	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	thesis, err := a.ThesisService.Upload(cmd.Context(), app.UploadInput{
		FileName: filepath.Base(path),
		Size:     info.Size(),
		Content:  f,
		OwnerID:  owner,
	})
	if err != nil {
		res.Error = err.Error()
		var notThesis *app.NotAThesisError
		if errors.As(err, &notThesis) {
			res.Verdict = notThesis.AIResponse
		}
		return res
	}

	res.ID = thesis.ID
	res.Title = thesis.Title
	return res
}
