package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"medidenoise/pkg/codec"
	"medidenoise/pkg/config"
	"medidenoise/pkg/service"
	"medidenoise/pkg/visualization"
)

var (
	denoiseOutput string
	denoiseSheet  string
	sheetScale    int
)

var denoiseCmd = &cobra.Command{
	Use:   "denoise <file>",
	Short: "Denoise one image offline and report its SNR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// offline runs never need a shared store
		local := *cfg
		local.Session.Backend = config.SessionMemory

		a, err := newApp(cmd.Context(), &local, baseLogger)
		if err != nil {
			return err
		}
		defer a.Close()

		return runDenoise(cmd, a, args[0])
	},
}

func init() {
	denoiseCmd.Flags().StringVarP(&denoiseOutput, "output", "o", "denoised.png", "Output image (.png or .jpg)")
	denoiseCmd.Flags().StringVar(&denoiseSheet, "sheet", "", "Optional comparison sheet (original | denoised | difference)")
	denoiseCmd.Flags().IntVar(&sheetScale, "scale", 2, "Enlargement factor for the comparison sheet")
}

func runDenoise(cmd *cobra.Command, a *app, path string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	up, err := a.svc.Upload(ctx, "", filepath.Base(path), data)
	if err != nil {
		return err
	}
	res, err := a.svc.Denoise(ctx, up.SessionID, up.OriginalImage)
	if err != nil {
		return err
	}

	if err := writeDenoised(a.svc, res.DenoisedImage, denoiseOutput); err != nil {
		return fmt.Errorf("failed to write %s: %w", denoiseOutput, err)
	}

	if denoiseSheet != "" {
		original, err := a.store.Get(ctx, up.SessionID)
		if err != nil {
			return err
		}
		denoised, err := codec.Decode(res.DenoisedImage, a.svc.Pipeline(), a.svc.MaxPixels())
		if err != nil {
			return err
		}
		sheet, err := visualization.ComparisonSheet(original, denoised, sheetScale)
		if err != nil {
			return err
		}
		if err := visualization.SaveImage(sheet, denoiseSheet); err != nil {
			return fmt.Errorf("failed to write %s: %w", denoiseSheet, err)
		}
	}

	printReport(cmd.OutOrStdout(), up, res)
	return nil
}

// writeDenoised stores the transport PNG as is, or re-encodes for other formats
func writeDenoised(svc *service.Service, uri, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		payload, err := codec.Payload(uri)
		if err != nil {
			return err
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		return os.WriteFile(path, payload, 0644)
	}

	img, err := codec.Decode(uri, svc.Pipeline(), svc.MaxPixels())
	if err != nil {
		return err
	}
	return visualization.SavePreview(img, path)
}

func printReport(w io.Writer, up *service.UploadResult, res *service.DenoiseResult) {
	fmt.Fprintf(w, "Original SNR:        %s dB\n", up.OriginalSNR)
	fmt.Fprintf(w, "Denoised SNR:        %s dB\n", res.DenoisedSNR)
	fmt.Fprintf(w, "PSNR:                %s dB\n", res.Metrics.PSNR)
	fmt.Fprintf(w, "RMSE:                %.6f\n", res.Metrics.RMSE)
	fmt.Fprintf(w, "SSIM:                %.4f\n", res.Metrics.SSIM)
	fmt.Fprintf(w, "Entropy difference:  %.3f\n", res.Metrics.EntropyDiff)
	fmt.Fprintf(w, "Mutual information:  %.3f bits\n", res.Metrics.MutualInfo)
}
