package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a registered account. Usernames are unique ignoring case; the
// folded form is kept in UsernameFold so lookups never depend on the
// database collation.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string     `bun:"id,pk,type:uuid" json:"id"`
	Username      string     `bun:"username,notnull" json:"username"`
	UsernameFold  string     `bun:"username_fold,notnull,unique" json:"-"`
	Email         string     `bun:"email" json:"email"`
	Name          string     `bun:"name" json:"name"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	IsAdmin       bool       `bun:"is_admin,notnull,default:false" json:"is_admin"`
	CSImages      int        `bun:"cs_images,notnull,default:0" json:"cs_images"`
	CSAnnotations int        `bun:"cs_annotations,notnull,default:0" json:"cs_annotations"`
	LastSeen      *time.Time `bun:"last_seen" json:"last_seen,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Session is a server-side login started by the password login or
// registration endpoints. Only the SHA-256 of the cookie value is stored.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID         string    `bun:"id,pk,type:uuid"`
	UserID     string    `bun:"user_id,notnull,type:uuid"`
	TokenHash  string    `bun:"token_hash,notnull,unique"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt time.Time `bun:"last_used_at,notnull,default:current_timestamp"`
	UserAgent  *string   `bun:"user_agent"`
	IPAddress  *string   `bun:"ip_address"`
	Revoked    bool      `bun:"revoked,notnull,default:false"`

	User *User `bun:"rel:belongs-to,join:user_id=id"`
}

// Active reports whether the session can still authenticate a request at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}
