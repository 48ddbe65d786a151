package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"chainsign/internal/domain"
	"chainsign/internal/infra/crypto"
	"chainsign/internal/usecase"

	"github.com/spf13/cobra"
)

// exportedTransaction is the shape returned by GET /api/v1/transactions.
type exportedTransaction struct {
	ID                string `json:"id"`
	DeviceID          string `json:"device_id"`
	Counter           int64  `json:"counter"`
	Timestamp         string `json:"timestamp"`
	Data              string `json:"data"`
	PreviousSignature string `json:"previous_signature"`
	SignedData        string `json:"signed_data"`
	Signature         string `json:"signature"`
}

type verifyOptions struct {
	in        string
	publicKey string
	algorithm string
	deviceID  string
}

func newVerifyCommand() *cobra.Command {
	o := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an exported transaction chain against a device public key.",
		Long: `Reads the JSON array returned by GET /api/v1/transactions?device_id=<id>, checks
counters, chain links and signatures, and prints a JSON report. Exits 1 when the chain is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := o.run()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Valid {
				return errChainInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&o.in, "in", "", "transactions JSON file")
	cmd.Flags().StringVar(&o.publicKey, "public-key", "", "device public key PEM file")
	cmd.Flags().StringVar(&o.algorithm, "algorithm", "", "device algorithm (RSA or ECC)")
	cmd.Flags().StringVar(&o.deviceID, "device-id", "", "device id (defaults to the id in the first transaction)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("public-key")
	_ = cmd.MarkFlagRequired("algorithm")
	return cmd
}

func (o *verifyOptions) run() (usecase.ChainReport, error) {
	alg, err := domain.ParseAlgorithm(o.algorithm)
	if err != nil {
		return usecase.ChainReport{}, err
	}
	pemBytes, err := os.ReadFile(o.publicKey)
	if err != nil {
		return usecase.ChainReport{}, fmt.Errorf("read public key: %w", err)
	}
	verifier, err := crypto.VerifierFromPEM(alg, string(pemBytes))
	if err != nil {
		return usecase.ChainReport{}, err
	}
	payload, err := os.ReadFile(o.in)
	if err != nil {
		return usecase.ChainReport{}, fmt.Errorf("read transactions: %w", err)
	}
	var exported []exportedTransaction
	if err := json.Unmarshal(payload, &exported); err != nil {
		return usecase.ChainReport{}, fmt.Errorf("decode transactions: %w", err)
	}

	deviceID := o.deviceID
	if deviceID == "" {
		if len(exported) == 0 {
			return usecase.ChainReport{}, fmt.Errorf("--device-id is required for an empty chain")
		}
		deviceID = exported[0].DeviceID
	}
	txs := make([]domain.Transaction, 0, len(exported))
	for _, e := range exported {
		tx := domain.Transaction{
			ID:                e.ID,
			DeviceID:          e.DeviceID,
			Counter:           e.Counter,
			Data:              e.Data,
			PreviousSignature: e.PreviousSignature,
			SignedData:        e.SignedData,
			Signature:         e.Signature,
		}
		if e.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil {
				return usecase.ChainReport{}, fmt.Errorf("transaction %s: invalid timestamp: %w", e.ID, err)
			}
			tx.Timestamp = ts
		}
		txs = append(txs, tx)
	}
	return usecase.AuditChain(deviceID, verifier, txs), nil
}
