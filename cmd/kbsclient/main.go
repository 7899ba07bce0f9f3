// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Command kbsclient exercises the key-backup-service client end to end:
// register (generate-and-backup), restore, and delete, against a configured
// enclave.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vaultkey/kbsclient/internal/attestation"
	"github.com/vaultkey/kbsclient/internal/backup"
	"github.com/vaultkey/kbsclient/internal/config"
	"github.com/vaultkey/kbsclient/internal/derivedkey"
	"github.com/vaultkey/kbsclient/internal/enclave"
	"github.com/vaultkey/kbsclient/internal/events"
	"github.com/vaultkey/kbsclient/internal/kbslog"
	"github.com/vaultkey/kbsclient/internal/keystore"
	"github.com/vaultkey/kbsclient/internal/transport"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	cfg, err := config.GetStructuredConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := kbslog.New("cmd/kbsclient")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	proto, derived, err := wire(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wiring error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "register":
		err = runRegister(ctx, proto, args)
	case "restore":
		err = runRestore(ctx, proto, args)
	case "delete":
		err = runDelete(ctx, proto)
	case "registration-lock":
		err = runRegistrationLock(derived)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", command, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kbsclient <register|restore|delete|registration-lock> [-pin PIN]")
}

func wire(ctx context.Context, cfg *config.StructuredConfig, log *kbslog.Logger) (*backup.Protocol, *derivedkey.Service, error) {
	repo, err := keystore.OpenSQLite(ctx, cfg.Storage.DSN, log.Child())
	if err != nil {
		return nil, nil, fmt.Errorf("open keystore: %w", err)
	}

	sink := events.NewSink(8)
	ks := keystore.New(repo, sink, log.Child(), cfg.Device.IsPrimary, cfg.KDF.TestMode)
	if err := ks.WarmCaches(ctx); err != nil {
		return nil, nil, fmt.Errorf("warm keystore caches: %w", err)
	}

	tr, err := transport.New(cfg.Enclave.Address, cfg.Enclave.RequestTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("build transport: %w", err)
	}

	attester := attestation.NewFake(cfg.Enclave.Name)
	enclaveClient := enclave.New(tr, attester, log.Child())

	proto := backup.New(ks, enclaveClient, log.Child(), true).
		WithParams(cfg.EncryptionAccessParams(), cfg.VerificationParams())

	return proto, derivedkey.New(ks), nil
}

func runRegister(ctx context.Context, proto *backup.Protocol, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	pin := fs.String("pin", "", "account PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pin == "" {
		return fmt.Errorf("-pin is required")
	}
	if err := proto.GenerateAndBackup(ctx, *pin, nil); err != nil {
		return err
	}
	fmt.Println("backup stored")
	return nil
}

func runRestore(ctx context.Context, proto *backup.Protocol, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	pin := fs.String("pin", "", "account PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pin == "" {
		return fmt.Errorf("-pin is required")
	}
	if err := proto.Restore(ctx, *pin, nil); err != nil {
		return err
	}
	fmt.Println("master key restored")
	return nil
}

func runDelete(ctx context.Context, proto *backup.Protocol) error {
	if err := proto.DeleteKeys(ctx, nil); err != nil {
		return err
	}
	fmt.Println("keys deleted")
	return nil
}

func runRegistrationLock(derived *derivedkey.Service) error {
	token, err := derived.RegistrationLockToken()
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no registration-lock token available; register first")
	}
	fmt.Println(token)
	return nil
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
