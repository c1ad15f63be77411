package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Annotation is one labelled region on an image.
type Annotation struct {
	bun.BaseModel `bun:"table:annotations,alias:a"`

	ID           int64       `bun:"id,pk,autoincrement" json:"id"`
	ImageID      int64       `bun:"image_id,notnull" json:"image_id"`
	DatasetID    int64       `bun:"dataset_id,notnull" json:"dataset_id"`
	CategoryID   int64       `bun:"category_id,notnull" json:"category_id"`
	Segmentation RawJSON     `bun:"segmentation,type:jsonb" json:"segmentation"`
	BBox         Float64List `bun:"bbox,type:jsonb,notnull" json:"bbox"`
	Area         float64     `bun:"area,notnull,default:0" json:"area"`
	IsCrowd      bool        `bun:"iscrowd,notnull,default:false" json:"iscrowd"`
	Color        string      `bun:"color" json:"color"`
	Metadata     RawJSON     `bun:"metadata,type:jsonb" json:"metadata"`
	Creator      string      `bun:"creator" json:"creator"`
	Deleted      bool        `bun:"deleted,notnull,default:false" json:"deleted"`
	DeletedDate  *time.Time  `bun:"deleted_date" json:"deleted_date,omitempty"`
	CreatedAt    time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// CloneOnto returns a copy of the annotation attached to target, ready to be
// inserted as a new row.
func (a Annotation) CloneOnto(target *Image, creator string) Annotation {
	clone := a
	clone.ID = 0
	clone.ImageID = target.ID
	clone.DatasetID = target.DatasetID
	clone.Creator = creator
	clone.CreatedAt = time.Time{}
	clone.Segmentation = append(RawJSON(nil), a.Segmentation...)
	clone.Metadata = append(RawJSON(nil), a.Metadata...)
	clone.BBox = append(Float64List(nil), a.BBox...)
	return clone
}
