package config

import (
	"fmt"
	"os"

	"github.com/Veraticus/txnflow/internal/common"
)

// applyEnvFallbacks fills Drive credentials from the GOOGLE_DRIVE_* variables
// when neither the config file nor TXNFLOW_ overrides set them.
func (d *DriveConfig) applyEnvFallbacks() {
	if d.ServiceAccountPath == "" {
		if v := os.Getenv("GOOGLE_DRIVE_SERVICE_ACCOUNT_PATH"); v != "" {
			d.ServiceAccountPath = ExpandPath(v)
		} else if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
			d.ServiceAccountPath = ExpandPath(v)
		}
	}
	if d.ClientID == "" {
		d.ClientID = os.Getenv("GOOGLE_DRIVE_CLIENT_ID")
	}
	if d.ClientSecret == "" {
		d.ClientSecret = os.Getenv("GOOGLE_DRIVE_CLIENT_SECRET")
	}
	if d.RefreshToken == "" {
		d.RefreshToken = os.Getenv("GOOGLE_DRIVE_REFRESH_TOKEN")
	}
	if d.FolderID == "" {
		d.FolderID = os.Getenv("GOOGLE_DRIVE_FOLDER_ID")
	}
}

// HasServiceAccount reports whether service account authentication is configured.
func (d DriveConfig) HasServiceAccount() bool {
	return d.ServiceAccountPath != ""
}

// Validate checks that exactly one authentication method is configured.
func (d DriveConfig) Validate() error {
	if d.FolderID == "" {
		return fmt.Errorf("%w: dataset.drive.folder_id", common.ErrMissingConfig)
	}

	hasOAuth := d.ClientID != "" && d.ClientSecret != "" && d.RefreshToken != ""
	hasServiceAccount := d.HasServiceAccount()

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: no Google Drive authentication method configured", common.ErrMissingConfig)
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("%w: multiple Google Drive authentication methods configured; use either OAuth2 or service account", common.ErrInvalidConfig)
	}
	if d.RetryAttempts < 0 || d.RetryDelay < 0 {
		return fmt.Errorf("%w: drive retry settings cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}
