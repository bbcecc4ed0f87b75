package models

import "time"

type User struct {
	ID           string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:12" bson:"username" json:"username"`
	Name         string    `gorm:"not null;size:12" bson:"name" json:"name"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string    `gorm:"column:password;not null" bson:"password,omitempty" json:"-"` // withheld from default reads
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

type Post struct {
	ID        string     `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	Number    int64      `gorm:"index;not null" bson:"num_id" json:"num_id"` // display sequence from the "posts" counter
	Title     string     `gorm:"not null" bson:"title" json:"title"`
	Body      string     `gorm:"type:text" bson:"body" json:"body"`
	AuthorID  string     `gorm:"index;not null;size:36" bson:"author" json:"author_id"`
	Author    *User      `gorm:"-" bson:"-" json:"author,omitempty"` // populated on read
	Views     int64      `gorm:"not null;default:0" bson:"views" json:"views"`
	Comments  []Comment  `gorm:"foreignKey:PostID" bson:"comments" json:"comments,omitempty"`
	CreatedAt time.Time  `gorm:"index" bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false" bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Comment is owned by its post: embedded in the post document on Mongo,
// a row keyed by post_id on SQL.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	PostID    string    `gorm:"index;not null;size:36" bson:"-" json:"post_id"`
	Body      string    `gorm:"type:text;not null" bson:"body" json:"body"`
	AuthorID  string    `gorm:"not null;size:36" bson:"author" json:"author_id"`
	Author    *User     `gorm:"-" bson:"-" json:"author,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Counter struct {
	Name       string `gorm:"primaryKey" bson:"name"`
	TotalCount int64  `gorm:"not null;default:0" bson:"total_count"`
}

// FindComment returns the comment with the given id, or nil.
func (p *Post) FindComment(id string) *Comment {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return &p.Comments[i]
		}
	}
	return nil
}
