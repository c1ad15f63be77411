package models

import (
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
)

// ThumbnailDir is the hidden directory, relative to the image's own
// directory, that derived thumbnails are written to.
const ThumbnailDir = ".thumbnail"

// Image is an uploaded file inside a dataset plus the crowd-sourcing state
// collected by annotators (cs_* fields).
type Image struct {
	bun.BaseModel `bun:"table:images,alias:img"`

	ID             int64      `bun:"id,pk,autoincrement" json:"id"`
	DatasetID      int64      `bun:"dataset_id,notnull" json:"dataset_id"`
	Path           string     `bun:"path,notnull,unique" json:"path"`
	FileName       string     `bun:"file_name,notnull" json:"file_name"`
	Width          int        `bun:"width,notnull" json:"width"`
	Height         int        `bun:"height,notnull" json:"height"`
	Annotated      bool       `bun:"annotated,notnull,default:false" json:"annotated"`
	NumAnnotations int        `bun:"num_annotations,notnull,default:0" json:"num_annotations"`
	UploadedBy     string     `bun:"uploaded_by" json:"uploaded_by"`
	Latitude       *float64   `bun:"latitude" json:"latitude,omitempty"`
	Longitude      *float64   `bun:"longitude" json:"longitude,omitempty"`
	CSAnnotating   bool       `bun:"cs_annotating,notnull,default:false" json:"cs_annotating"`
	CSAnnotated    StringSet  `bun:"cs_annotated,type:jsonb,notnull" json:"cs_annotated"`
	CSFlaggedUsers StringSet  `bun:"cs_flagged_users,type:jsonb,notnull" json:"cs_flagged_users"`
	ApprovedBy     string     `bun:"approved_by" json:"approved_by"`
	Deleted        bool       `bun:"deleted,notnull,default:false" json:"deleted"`
	DeletedDate    *time.Time `bun:"deleted_date" json:"deleted_date,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ThumbnailPath returns where the derived thumbnail of this image lives. The
// full file name is kept so files sharing a stem get distinct thumbnails.
func (i *Image) ThumbnailPath() string {
	dir, file := filepath.Split(i.Path)
	return filepath.Join(dir, ThumbnailDir, file+".jpg")
}
