package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/config"
	"github.com/Veraticus/txnflow/internal/service"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveSource downloads the dataset files from a Google Drive folder.
type DriveSource struct {
	service *drive.Service
	logger  *zap.Logger
	config  config.DriveConfig
	retry   service.RetryOptions
	fileIDs map[string]string
}

var _ Source = (*DriveSource)(nil)

// NewDriveSource authenticates against Google Drive and resolves the folder
// contents. Authentication failures are configuration errors.
func NewDriveSource(ctx context.Context, cfg config.DriveConfig, logger *zap.Logger) (*DriveSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid drive config: %w", err)
	}

	httpClient, err := driveHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}
	return newDriveSource(srv, cfg, logger), nil
}

func newDriveSource(srv *drive.Service, cfg config.DriveConfig, logger *zap.Logger) *DriveSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveSource{
		service: srv,
		config:  cfg,
		logger:  logger.With(zap.String("folder_id", cfg.FolderID)),
		retry: service.RetryOptions{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// driveHTTPClient builds an authenticated client from a service account key
// or from an OAuth2 refresh token.
func driveHTTPClient(ctx context.Context, cfg config.DriveConfig) (*http.Client, error) {
	var tokenSource oauth2.TokenSource

	if cfg.HasServiceAccount() {
		jsonKey, err := os.ReadFile(cfg.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read service account key file: %w", common.ErrInvalidConfig, err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to parse service account key: %w", common.ErrInvalidConfig, err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveReadonlyScope},
		}

		token := &oauth2.Token{
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	return oauth2.NewClient(ctx, tokenSource), nil
}

// Name implements Source.
func (d *DriveSource) Name() string {
	return "drive:" + d.config.FolderID
}

// Transactions implements Source.
func (d *DriveSource) Transactions(ctx context.Context) (io.ReadCloser, error) {
	id, err := d.fileID(ctx, d.config.TransactionsFile)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s not found in drive folder %s", common.ErrNotFound, d.config.TransactionsFile, d.config.FolderID)
	}
	return d.download(ctx, id)
}

// Importance implements Source.
func (d *DriveSource) Importance(ctx context.Context) (io.ReadCloser, error) {
	id, err := d.fileID(ctx, d.config.ImportanceFile)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrImportanceMissing
	}
	return d.download(ctx, id)
}

// fileID looks a file up by case-insensitive name, listing the folder once.
func (d *DriveSource) fileID(ctx context.Context, name string) (string, error) {
	if d.fileIDs == nil {
		ids := make(map[string]string)
		err := common.WithRetry(ctx, d.logger, "list drive folder", func() error {
			clear(ids)
			return d.service.Files.List().
				Q(fmt.Sprintf("'%s' in parents and trashed = false", d.config.FolderID)).
				Fields("nextPageToken, files(id, name, mimeType)").
				Context(ctx).
				Pages(ctx, func(page *drive.FileList) error {
					for _, f := range page.Files {
						ids[strings.ToLower(f.Name)] = f.Id
					}
					return nil
				})
		}, d.retry)
		if err != nil {
			return "", err
		}
		d.fileIDs = ids
		d.logger.Debug("listed drive folder", zap.Int("files", len(ids)))
	}
	return d.fileIDs[strings.ToLower(name)], nil
}

// download reads a whole file into memory so a failed read can be retried.
func (d *DriveSource) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	var data []byte
	err := common.WithRetry(ctx, d.logger, "download drive file "+fileID, func() error {
		resp, err := d.service.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		return err
	}, d.retry)
	if err != nil {
		return nil, err
	}

	d.logger.Info("downloaded drive file", zap.String("file_id", fileID), zap.Int("bytes", len(data)))
	return io.NopCloser(bytes.NewReader(data)), nil
}
