package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"messageboard/database"
	"messageboard/models"
)

// userColumns excludes the password hash.
var userColumns = []string{"id", "username", "name", "email", "created_at"}

// driverName is the sqlite3 driver with foldLower registered on every
// connection. sqlite's own LOWER only folds ASCII.
const (
	driverName = "sqlite3_board"
	foldLower  = "fold_lower"
)

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(foldLower, strings.ToLower, true)
		},
	})
}

type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite database at path; ":memory:" is
// accepted for tests.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: driverName, DSN: path}), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer, and every ":memory:" connection is a new database.
	sqlDB.SetMaxOpenConns(1)
	return &SQLStore{db: db}, nil
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	return database.RunMigrations(s.conn(ctx))
}

func (s *SQLStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUsername
	}
	return err
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.conn(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", duplicate(err))
	}
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Select(userColumns).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Select(userColumns).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *SQLStore) GetUserCredentials(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.conn(ctx).Select(userColumns).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *SQLStore) FindUserIDs(ctx context.Context, username string, exact bool) ([]string, error) {
	q := s.conn(ctx).Model(&models.User{})
	if exact {
		q = q.Where("username = ?", username)
	} else {
		q = q.Where(foldLower+`(username) LIKE ? ESCAPE '\'`, likePattern(username))
	}
	var ids []string
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find user ids: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, user *models.User) error {
	updates := map[string]interface{}{
		"username": user.Username,
		"name":     user.Name,
		"email":    user.Email,
	}
	if user.PasswordHash != "" {
		updates["password"] = user.PasswordHash
	}
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update user: %w", duplicate(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) usersByID(ctx context.Context, ids []string) (map[string]*models.User, error) {
	var users []models.User
	if err := s.conn(ctx).Select(userColumns).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}
	out := make(map[string]*models.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *SQLStore) NextSequence(ctx context.Context, name string) (int64, error) {
	var counter models.Counter
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Counter{Name: name}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Counter{}).Where("name = ?", name).
			UpdateColumn("total_count", gorm.Expr("total_count + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).First(&counter).Error
	})
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return counter.TotalCount, nil
}

func (s *SQLStore) CreatePost(ctx context.Context, post *models.Post) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := s.conn(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).First(&post).Error
	if err != nil {
		return nil, notFound(err)
	}
	if err := populate(ctx, s.usersByID, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// applyPostFilter translates a PostFilter into a WHERE clause. Callers
// handle filter.Empty before querying.
func applyPostFilter(q *gorm.DB, filter PostFilter) *gorm.DB {
	var clauses []string
	var args []interface{}
	if filter.Text != "" {
		pattern := likePattern(filter.Text)
		for _, field := range filter.Fields {
			if !SearchFields[field] {
				continue
			}
			clauses = append(clauses, fmt.Sprintf(`%s(%s) LIKE ? ESCAPE '\'`, foldLower, field))
			args = append(args, pattern)
		}
	}
	if len(filter.AuthorIDs) > 0 {
		clauses = append(clauses, "author_id IN ?")
		args = append(args, filter.AuthorIDs)
	}
	if len(clauses) == 0 {
		return q
	}
	return q.Where(strings.Join(clauses, " OR "), args...)
}

func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(text)) + "%"
}

func (s *SQLStore) CountPosts(ctx context.Context, filter PostFilter) (int64, error) {
	if filter.Empty {
		return 0, nil
	}
	var count int64
	if err := applyPostFilter(s.conn(ctx).Model(&models.Post{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *SQLStore) ListPosts(ctx context.Context, filter PostFilter, opts ListOptions) ([]models.Post, error) {
	if filter.Empty {
		return []models.Post{}, nil
	}
	q := applyPostFilter(s.conn(ctx).Model(&models.Post{}), filter)
	switch opts.Sort {
	case SortViews:
		q = q.Order("views DESC").Order("created_at DESC")
	default:
		q = q.Order("created_at DESC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Skip > 0 {
		q = q.Offset(opts.Skip)
	}

	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if err := populate(ctx, s.usersByID, postPointers(posts)...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *SQLStore) UpdatePost(ctx context.Context, post *models.Post) error {
	res := s.conn(ctx).Model(&models.Post{}).Where("id = ?", post.ID).Updates(map[string]interface{}{
		"title":      post.Title,
		"body":       post.Body,
		"updated_at": post.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeletePost(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return fmt.Errorf("delete post: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) IncrementViews(ctx context.Context, id string) error {
	res := s.conn(ctx).Model(&models.Post{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment views: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) AddComment(ctx context.Context, postID string, comment *models.Comment) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		comment.PostID = postID
		if err := tx.Create(comment).Error; err != nil {
			return fmt.Errorf("add comment: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) DeleteComment(ctx context.Context, postID, commentID string) error {
	res := s.conn(ctx).Where("id = ? AND post_id = ?", commentID, postID).Delete(&models.Comment{})
	if res.Error != nil {
		return fmt.Errorf("delete comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
