package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"messageboard/database"
	"messageboard/models"
)

// MongoStore keeps users, posts and counters in their own collections.
// Comments are embedded in the post document.
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	posts    *mongo.Collection
	counters *mongo.Collection
}

var withoutPassword = bson.M{"password": 0}

func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := NewMongoStore(client.Database(dbName))
	s.client = client
	return s, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:       db,
		users:    db.Collection("users"),
		posts:    db.Collection("posts"),
		counters: db.Collection("counters"),
	}
}

func (s *MongoStore) Migrate(ctx context.Context) error {
	return database.RunMongoMigrations(ctx, s.db)
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongo insert user: %w", ErrDuplicateUsername)
		}
		return fmt.Errorf("mongo insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M, projection interface{}) (*models.User, error) {
	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(projection)
	}
	var user models.User
	if err := s.users.FindOne(ctx, filter, opts).Decode(&user); err != nil {
		return nil, mongoNotFound(err)
	}
	return &user, nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id}, withoutPassword)
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"username": username}, withoutPassword)
}

func (s *MongoStore) GetUserCredentials(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"username": username}, nil)
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetProjection(withoutPassword)
	cur, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list users: %w", err)
	}
	defer cur.Close(ctx)

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) FindUserIDs(ctx context.Context, username string, exact bool) ([]string, error) {
	filter := bson.M{"username": username}
	if !exact {
		filter = bson.M{"username": primitive.Regex{Pattern: regexp.QuoteMeta(username), Options: "i"}}
	}
	cur, err := s.users.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongo find user ids: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, user *models.User) error {
	set := bson.M{
		"username": user.Username,
		"name":     user.Name,
		"email":    user.Email,
	}
	if user.PasswordHash != "" {
		set["password"] = user.PasswordHash
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongo update user: %w", ErrDuplicateUsername)
		}
		return fmt.Errorf("mongo update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) usersByID(ctx context.Context, ids []string) (map[string]*models.User, error) {
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(withoutPassword))
	if err != nil {
		return nil, fmt.Errorf("mongo load authors: %w", err)
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	out := make(map[string]*models.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *MongoStore) NextSequence(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var counter models.Counter
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"name": name},
		bson.M{"$inc": bson.M{"total_count": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo next sequence %s: %w", name, err)
	}
	return counter.TotalCount, nil
}

func (s *MongoStore) CreatePost(ctx context.Context, post *models.Post) error {
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}
	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		return fmt.Errorf("mongo insert post: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		return nil, mongoNotFound(err)
	}
	if err := populate(ctx, s.usersByID, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// postFilterDoc translates a PostFilter into a query document. Callers
// handle filter.Empty before querying.
func postFilterDoc(filter PostFilter) bson.M {
	var or []bson.M
	if filter.Text != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Text), Options: "i"}
		for _, field := range filter.Fields {
			if SearchFields[field] {
				or = append(or, bson.M{field: pattern})
			}
		}
	}
	if len(filter.AuthorIDs) > 0 {
		or = append(or, bson.M{"author": bson.M{"$in": filter.AuthorIDs}})
	}
	if len(or) == 0 {
		return bson.M{}
	}
	return bson.M{"$or": or}
}

func postSort(order SortOrder) bson.D {
	if order == SortViews {
		return bson.D{{Key: "views", Value: -1}, {Key: "created_at", Value: -1}}
	}
	return bson.D{{Key: "created_at", Value: -1}}
}

func (s *MongoStore) CountPosts(ctx context.Context, filter PostFilter) (int64, error) {
	if filter.Empty {
		return 0, nil
	}
	n, err := s.posts.CountDocuments(ctx, postFilterDoc(filter))
	if err != nil {
		return 0, fmt.Errorf("mongo count posts: %w", err)
	}
	return n, nil
}

func (s *MongoStore) ListPosts(ctx context.Context, filter PostFilter, opts ListOptions) ([]models.Post, error) {
	if filter.Empty {
		return []models.Post{}, nil
	}
	find := options.Find().
		SetSort(postSort(opts.Sort)).
		SetProjection(bson.M{"comments": 0})
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	if opts.Skip > 0 {
		find.SetSkip(int64(opts.Skip))
	}

	cur, err := s.posts.Find(ctx, postFilterDoc(filter), find)
	if err != nil {
		return nil, fmt.Errorf("mongo list posts: %w", err)
	}
	defer cur.Close(ctx)

	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	if err := populate(ctx, s.usersByID, postPointers(posts)...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *MongoStore) UpdatePost(ctx context.Context, post *models.Post) error {
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": post.ID}, bson.M{"$set": bson.M{
		"title":      post.Title,
		"body":       post.Body,
		"updated_at": post.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("mongo update post: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementViews(ctx context.Context, id string) error {
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return fmt.Errorf("mongo increment views: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AddComment(ctx context.Context, postID string, comment *models.Comment) error {
	comment.PostID = postID
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$push": bson.M{"comments": comment}})
	if err != nil {
		return fmt.Errorf("mongo add comment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteComment(ctx context.Context, postID, commentID string) error {
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID, "comments._id": commentID},
		bson.M{"$pull": bson.M{"comments": bson.M{"_id": commentID}}},
	)
	if err != nil {
		return fmt.Errorf("mongo delete comment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
