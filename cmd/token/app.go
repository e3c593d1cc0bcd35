package token

import (
	"fmt"

	"service-hub/internal/cli"
	"service-hub/internal/general/config"
)

// Run mints a development JWT using the hub's configured secret and prints it.
func Run(configPath, userID, role string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tkn, claims, err := cli.GenerateUserToken(cfg.JWT.SecretKey, userID, role)
	if err != nil {
		return err
	}

	fmt.Printf("user_id:    %s\n", claims.Subject)
	fmt.Printf("role:       %s\n", claims.Role)
	fmt.Printf("expires_at: %s\n", claims.ExpiresAt.Time)
	fmt.Printf("token:      %s\n", tkn)
	return nil
}
