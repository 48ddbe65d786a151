package main

import (
	"fmt"
	"os"
	"path/filepath"

	"chainsign/internal/domain"
	"chainsign/internal/infra/crypto"

	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var (
		algorithm string
		outDir    string
		rsaBits   int
		curve     string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a device key pair as public.pem and private.pem.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := domain.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			svc, err := crypto.NewService(crypto.Options{RSABits: rsaBits, Curve: curve})
			if err != nil {
				return err
			}
			pair, err := svc.Generate(alg)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return err
			}
			publicPath := filepath.Join(outDir, "public.pem")
			privatePath := filepath.Join(outDir, "private.pem")
			if err := os.WriteFile(publicPath, []byte(pair.PublicKeyPEM), 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(privatePath, []byte(pair.PrivateKeyPEM), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", publicPath, privatePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "key algorithm (RSA or ECC)")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "output directory")
	cmd.Flags().IntVar(&rsaBits, "rsa-bits", 2048, "RSA modulus size")
	cmd.Flags().StringVar(&curve, "curve", "P-256", "ECC curve (P-256 or P-384)")
	_ = cmd.MarkFlagRequired("algorithm")
	return cmd
}
