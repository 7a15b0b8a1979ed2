package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tapkind/internal/auth"
	"tapkind/internal/qr"
	"tapkind/internal/service"
	"tapkind/internal/tipid"
)

func newResolveCmd(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "resolve <payload>",
		Short: "Normalize a scanned or typed TipID and look up its recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.resolve(cmd.Context(), cmd.OutOrStdout(), args[0], offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "only print the normalized identifier")
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "scan <image>...",
		Short: "Scan image files for a TipID QR code and resolve the first one found",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := a.scanFiles(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.resolve(cmd.Context(), cmd.OutOrStdout(), payload, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "only print the normalized identifier")
	return cmd
}

// scanFiles feeds the files to the scanner one frame at a time until a code decodes.
func (a *app) scanFiles(ctx context.Context, paths []string) (string, error) {
	decoded := make(chan string, 1)
	exhausted := make(chan error, 1)
	scanner := qr.NewScanner(qr.FileCamera{Paths: paths})
	err := scanner.Start(qr.FacingEnvironment, qr.Config{FPS: 50},
		func(text string) { decoded <- text },
		func(err error) {
			if errors.Is(err, qr.ErrExhausted) {
				exhausted <- err
				return
			}
			a.log.Warn("frame skipped", zap.Error(err))
		},
	)
	if err != nil {
		return "", err
	}
	defer func() { _ = scanner.Stop() }()

	select {
	case text := <-decoded:
		return text, nil
	case <-exhausted:
		return "", errors.New("no QR code found in the given images")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *app) resolve(ctx context.Context, out io.Writer, payload string, offline bool) error {
	id := tipid.Normalize(payload)
	if id == "" {
		return errors.New("payload holds no identifier")
	}
	if offline || a.cfg.Server.Store == "memory" {
		_, err := fmt.Fprintln(out, id)
		return err
	}

	store, closeStore, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer closeStore()
	svc := service.New(store, auth.NewManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTokenTTL), nil, a.cfg, a.log)
	recipient, err := svc.ResolveRecipient(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(recipient)
}
