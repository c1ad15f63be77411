package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Dataset groups images stored under one directory. Owner and Members hold
// usernames; Categories lists the category ids annotators may use.
type Dataset struct {
	bun.BaseModel `bun:"table:datasets,alias:d"`

	ID          int64      `bun:"id,pk,autoincrement" json:"id"`
	Name        string     `bun:"name,notnull,unique" json:"name"`
	Directory   string     `bun:"directory,notnull" json:"directory"`
	Owner       string     `bun:"owner,notnull" json:"owner"`
	Members     StringSet  `bun:"members,type:jsonb,notnull" json:"users"`
	Categories  Int64List  `bun:"categories,type:jsonb,notnull" json:"categories"`
	IsPublic    bool       `bun:"is_public,notnull,default:false" json:"is_public"`
	Deleted     bool       `bun:"deleted,notnull,default:false" json:"deleted"`
	DeletedDate *time.Time `bun:"deleted_date" json:"deleted_date,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Category is an annotation label shared across datasets.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Name          string    `bun:"name,notnull,unique" json:"name"`
	SuperCategory string    `bun:"supercategory" json:"supercategory"`
	Color         string    `bun:"color" json:"color"`
	Creator       string    `bun:"creator" json:"creator"`
	Deleted       bool      `bun:"deleted,notnull,default:false" json:"deleted"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
