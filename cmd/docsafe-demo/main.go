package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	docsafe "github.com/ameerarsath/publicdocsafe-sub000"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/config"
	"github.com/ameerarsath/publicdocsafe-sub000/internal/keymanager"
	"github.com/ameerarsath/publicdocsafe-sub000/pkg/logging"
)

func main() {
	fmt.Println("Starting DocSafe demo")

	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to load config: %s", err))
	}

	logger := logging.New(conf.LogLevel)

	absPath, _ := filepath.Abs(filepath.Join(conf.Paths[0], time.Now().Format("20060102-150405")))

	ds, err := docsafe.New(docsafe.Config{
		Paths:         []string{absPath},
		MinimumFreeGB: conf.MinimumFreeGB,
		DeriveWorkers: conf.DeriveWorkers,
		Logger:        logger,
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to initialize DocSafe: %s", err))
	}

	ctx := context.Background()
	if err := ds.Start(ctx); err != nil {
		log.Fatal(fmt.Sprintf("Failed to start DocSafe: %s", err))
	}
	defer ds.Close(ctx)

	const password = "demo-password-please-change"

	// Register a key for the demo user.
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		log.Fatal(fmt.Sprintf("Failed to generate salt: %s", err))
	}
	payload, err := keymanager.SealValidationPayload(password, salt, conf.DefaultIterations, "demo")
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to seal validation payload: %s", err))
	}
	rec, err := ds.CreateKey(ctx, docsafe.CreateKeyParams{
		UserID:            "demo",
		Username:          "demo",
		Password:          password,
		Iterations:        conf.DefaultIterations,
		Salt:              salt,
		ValidationPayload: payload,
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to create key: %s", err))
	}
	fmt.Printf("Created key %s for user demo\n", rec.KeyID)

	// Encrypt and decrypt a document.
	meta, err := ds.EncryptDocument(ctx, "demo", password, []byte("Hello World"))
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to encrypt document: %s", err))
	}
	fmt.Println("Encrypted document with a fresh per-document key")

	plaintext, err := ds.DecryptDocument(ctx, "demo", password, meta, nil, nil)
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to decrypt document: %s", err))
	}
	fmt.Printf("Decrypted document: %s\n", plaintext)

	// Rotate the key and show that only one key stays active.
	rotated, err := ds.RotateKey(ctx, "demo", rec.KeyID, password, false)
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to rotate key: %s", err))
	}
	fmt.Printf("Rotated to key %s\n", rotated.KeyID)

	keys, err := ds.ListKeys(ctx, "demo", false)
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to list keys: %s", err))
	}
	fmt.Printf("Active keys for user demo: %d\n", len(keys))
}
