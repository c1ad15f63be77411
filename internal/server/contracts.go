package server

import (
	"context"

	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/services/annotation"
	"github.com/sriramreddyM/coco-annotator/internal/services/iam"
	"github.com/sriramreddyM/coco-annotator/internal/services/images"
	"github.com/sriramreddyM/coco-annotator/internal/services/imaging"
	"github.com/sriramreddyM/coco-annotator/internal/services/users"
)

// UserService defines the user operations needed by the user handlers.
type UserService interface {
	Register(ctx context.Context, in users.RegisterInput, meta iam.SessionMeta) (*users.LoginResult, error)
	Login(ctx context.Context, username, password string, meta iam.SessionMeta) (*users.LoginResult, error)
	LoginToken(ctx context.Context, username, password string) (string, *models.User, error)
	Logout(ctx context.Context, p *iam.Principal) error
	ChangePassword(ctx context.Context, p *iam.Principal, current, next string) error
	Live(ctx context.Context, p *iam.Principal) (int, error)
	Leaderboard(ctx context.Context) (*users.Leaderboard, error)
}

// ImageService defines the image operations needed by the image handlers.
type ImageService interface {
	List(ctx context.Context, p *iam.Principal, params images.ListParams) (*images.Page, error)
	Upload(ctx context.Context, p *iam.Principal, in images.UploadInput) (int64, error)
	Render(ctx context.Context, p *iam.Principal, id int64, opts imaging.Options) ([]byte, *models.Image, error)
	Delete(ctx context.Context, p *iam.Principal, id int64) error
	Update(ctx context.Context, p *iam.Principal, id int64, in images.UpdateInput) (*models.Image, error)
	Flag(ctx context.Context, p *iam.Principal, id int64, flagged bool) error
	Approve(ctx context.Context, p *iam.Principal, id int64) error
}

// AnnotationService defines the annotation operations exposed under /image.
type AnnotationService interface {
	CopyAnnotations(ctx context.Context, p *iam.Principal, fromID, toID int64, categoryIDs []int64) (int, error)
	ImageCOCO(ctx context.Context, p *iam.Principal, id int64) (*annotation.COCO, error)
}

var (
	_ UserService       = (*users.Service)(nil)
	_ ImageService      = (*images.Service)(nil)
	_ AnnotationService = (*annotation.Service)(nil)
)
