package main

import (
	"context"
	"io"

	"github.com/hkpd/keyserver/config"
	"github.com/hkpd/keyserver/hkp/storage"
	log "github.com/hkpd/keyserver/internal/log"
	"github.com/hkpd/keyserver/openpgp"
)

// runImport reads a concatenated public-key stream from r and absorbs it
// into store via storage.UpdateKeys, applying the configured clean
// policies to each incoming key first.
func runImport(ctx context.Context, store storage.Storage, r io.Reader, cfg config.Config) error {
	packets, err := openpgp.ReadStream(r, 0)
	if err != nil {
		return err
	}
	keys, err := openpgp.ParseKeys(packets)
	if err != nil {
		return err
	}

	for _, key := range keys {
		openpgp.DedupUIDs(key)
		openpgp.DedupSubkeys(key)
		if openpgp.CleanPolicy(cfg.CleanPolicies) != 0 {
			openpgp.ApplyPolicy(key, openpgp.CleanPolicy(cfg.CleanPolicies), 0)
		}
	}

	updateOnly := openpgp.CleanPolicy(cfg.CleanPolicies)&openpgp.PolicyUpdateOnly != 0
	newCount, err := storage.UpdateKeys(ctx, store, keys, nil, updateOnly)
	if err != nil {
		return err
	}
	log.Infof("import: absorbed %d new keys out of %d in stream", newCount, len(keys))
	return nil
}
