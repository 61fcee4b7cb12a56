package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/extraction"
	"fleetdocs-backend/internal/normalize"
)

// extractOutput is what the extract command prints.
type extractOutput struct {
	File         string             `json:"file"`
	DocumentType string             `json:"documentType"`
	Raw          extraction.Payload `json:"raw"`
	Normalized   *normalize.Result  `json:"normalized,omitempty"`
	Missing      []string           `json:"missing,omitempty"`
}

// newExtractCmd runs one image through the configured provider and the normalizer
// without creating a document, for checking prompts and schemas.
func (c *cli) newExtractCmd() *cobra.Command {
	var (
		typeHint string
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Extract and normalize one image without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			docType, ok := documents.ParseType(typeHint)
			if !ok {
				return fmt.Errorf("unknown document type %q", typeHint)
			}

			app, err := c.buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := app.Extractor.Extract(ctx, extraction.Request{
				Image:        image,
				MIMEType:     http.DetectContentType(image),
				DocumentType: string(docType),
			})
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}

			out := extractOutput{File: filepath.Base(args[0]), DocumentType: string(docType), Raw: raw}
			if out.DocumentType == "" {
				out.DocumentType = raw.DocType()
			}
			res, err := app.Normalizer.Normalize(raw, out.DocumentType)
			var normErr *normalize.NormalizationError
			switch {
			case errors.As(err, &normErr):
				out.Normalized = &normErr.Partial
				out.Missing = normErr.Missing
			case err != nil:
				return fmt.Errorf("normalize: %w", err)
			default:
				out.Normalized = &res
			}

			pretty, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("format json: %w", err)
			}
			pretty = append(pretty, '\n')
			if outPath != "" {
				if err := os.WriteFile(outPath, pretty, 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			_, err = bytes.NewReader(pretty).WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&typeHint, "type", "", "document type hint; empty asks the model to classify")
	cmd.Flags().StringVar(&outPath, "out", "", "also write the JSON output to this path")
	return cmd
}
