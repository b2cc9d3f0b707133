// Package crypto resolves the admin JWT signing secret. Production reads it
// from Vault; smaller deployments fall back to the configured value.
package crypto

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// AdminSecret resolves the HMAC key guarding the admin endpoints. When Vault
// is enabled the key is read from the configured KV mount; otherwise the
// static admin_auth.secret is used.
func AdminSecret(ctx context.Context, cfg *config.Config, log logger.Logger) ([]byte, error) {
	if !cfg.Vault.Enabled {
		if cfg.AdminAuth.Secret == "" {
			return nil, errors.ErrInternal("admin_auth.secret is empty and vault is disabled")
		}
		return []byte(cfg.AdminAuth.Secret), nil
	}

	client, err := vault.NewClient(&vault.Config{Address: cfg.Vault.Address})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vault client")
	}
	client.SetToken(cfg.Vault.Token)

	secret, err := client.KVv2(cfg.Vault.MountPath).Get(ctx, cfg.Vault.SecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read admin secret from vault")
	}

	value, ok := secret.Data["secret"].(string)
	if !ok || value == "" {
		return nil, errors.ErrInternal(
			fmt.Sprintf("vault secret %s/%s has no usable 'secret' field", cfg.Vault.MountPath, cfg.Vault.SecretKey))
	}

	log.Info(ctx, "admin secret loaded from vault",
		logger.String("mount", cfg.Vault.MountPath),
		logger.String("key", cfg.Vault.SecretKey),
	)
	return []byte(value), nil
}
