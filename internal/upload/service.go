// Package upload は画像ファイルのアップロードを提供する。
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// allowedExtensions はアップロードを許可する画像の拡張子。
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Service は画像アップロードのバックエンド呼び出しを提供する。
type Service struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client, logger *slog.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// UploadImage は画像をmultipartのfileフィールドとして送信し、配信URLを返す。
func (s *Service) UploadImage(ctx context.Context, filename string, content io.Reader) (*model.FileUploadResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, model.NewValidationError("file", "画像ファイル（jpg, png, gif, webp）を選択してください。")
	}

	var res model.FileUploadResponse
	if err := s.api.Upload(ctx, "/fileupload/upload-image", "file", filepath.Base(filename), content, &res); err != nil {
		s.logger.Error("image upload failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	if !res.Success {
		return nil, model.NewBackendError(0, "画像のアップロードに失敗しました。")
	}
	return &res, nil
}
