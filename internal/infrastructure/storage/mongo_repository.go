package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

const articlesCollection = "articles"

// articleDoc embeds the view log next to the article fields.
type articleDoc struct {
	domain.Article `bson:",inline"`
	Views          []domain.View `bson:"views,omitempty"`
}

// MongoRepository stores articles in one MongoDB collection with a unique (title, date) index.
type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

var _ ports.ArticleRepository = (*MongoRepository)(nil)

// OpenMongo connects to uri and prepares the articles collection in database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoRepository, error) {
	if database == "" {
		database = "newsharvester"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	repo := &MongoRepository{
		client: client,
		coll:   client.Database(database).Collection(articlesCollection),
		now:    time.Now,
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "title", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("title_date_unique"),
		},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "trend", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) Exists(ctx context.Context, title, date string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"title": title, "date": date}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return n > 0, nil
}

func (r *MongoRepository) Insert(ctx context.Context, draft domain.ArticleDraft) (domain.Article, error) {
	article := newArticle(draft, r.now().UTC().Truncate(time.Millisecond))
	if _, err := r.coll.InsertOne(ctx, articleDoc{Article: article}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Article{}, fmt.Errorf("insert %q (%s): %w", article.Title, article.Date, domain.ErrConstraint)
		}
		return domain.Article{}, fmt.Errorf("insert: %w", err)
	}
	return article, nil
}

func (r *MongoRepository) Reclassify(ctx context.Context, title, category string) (bool, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"title": title, "category": bson.M{"$ne": category}},
		bson.M{"$set": bson.M{"category": category, "updated_at": r.now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("reclassify: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// SetTrend marks titles with trend and resets articles that lost it; an empty list changes nothing.
func (r *MongoRepository) SetTrend(ctx context.Context, trend string, titles []string) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}
	now := r.now().UTC()

	_, err := r.coll.UpdateMany(ctx,
		bson.M{"trend": trend, "title": bson.M{"$nin": titles}},
		bson.M{"$set": bson.M{"trend": domain.TrendNormal, "updated_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("reset trend: %w", err)
	}

	res, err := r.coll.UpdateMany(ctx,
		bson.M{"title": bson.M{"$in": titles}, "trend": bson.M{"$ne": trend}},
		bson.M{"$set": bson.M{"trend": trend, "updated_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark trend: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (r *MongoRepository) List(ctx context.Context, q ports.ListQuery) (ports.ListResult, error) {
	q = q.Normalise()
	filter := listFilter(q)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return ports.ListResult{}, fmt.Errorf("count articles: %w", err)
	}

	direction := 1
	if q.SortDesc {
		direction = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: q.SortField, Value: direction}, {Key: "_id", Value: 1}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.PageSize)).
		SetProjection(bson.M{"views": 0})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return ports.ListResult{}, fmt.Errorf("find articles: %w", err)
	}
	defer cursor.Close(ctx)

	articles := []domain.Article{}
	for cursor.Next(ctx) {
		var doc articleDoc
		if err := cursor.Decode(&doc); err != nil {
			return ports.ListResult{}, fmt.Errorf("decode article: %w", err)
		}
		articles = append(articles, normaliseDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return ports.ListResult{}, fmt.Errorf("cursor: %w", err)
	}
	return ports.ListResult{Articles: articles, Total: int(total)}, nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (domain.Article, error) {
	return r.findOne(ctx, bson.M{"_id": id}, options.FindOne())
}

func (r *MongoRepository) Search(ctx context.Context, title, titleTranslated string) (domain.Article, error) {
	filter := searchFilter(title, titleTranslated)
	if filter == nil {
		return domain.Article{}, domain.ErrNotFound
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// Update applies the non-nil fields of upd; title and date are immutable.
func (r *MongoRepository) Update(ctx context.Context, id string, upd ports.ArticleUpdate) (domain.Article, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updateFields(upd, r.now().UTC())})
	if err != nil {
		return domain.Article{}, fmt.Errorf("update: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.Article{}, domain.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordView pushes (ip, userAgent) unless the pair is already logged, in one atomic update.
func (r *MongoRepository) RecordView(ctx context.Context, id, ip, userAgent string) (int, error) {
	filter := bson.M{
		"_id":   id,
		"views": bson.M{"$not": bson.M{"$elemMatch": bson.M{"ip": ip, "user_agent": userAgent}}},
	}
	update := bson.M{
		"$push": bson.M{"views": domain.View{IP: ip, UserAgent: userAgent, ViewedAt: r.now().UTC()}},
		"$inc":  bson.M{"view_count": 1},
	}
	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return 0, fmt.Errorf("record view: %w", err)
	}

	article, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return article.ViewCount, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter any, opts *options.FindOneOptions) (domain.Article, error) {
	var doc articleDoc
	err := r.coll.FindOne(ctx, filter, opts.SetProjection(bson.M{"views": 0})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Article{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("find article: %w", err)
	}
	return normaliseDoc(doc), nil
}

func listFilter(q ports.ListQuery) bson.M {
	filter := bson.M{}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Title != "" {
		filter["title"] = containsPattern(q.Title)
	}
	return filter
}

func searchFilter(title, titleTranslated string) bson.M {
	var or bson.A
	if title != "" {
		or = append(or, bson.M{"title": containsPattern(title)})
	}
	if titleTranslated != "" {
		or = append(or, bson.M{"title_translated": containsPattern(titleTranslated)})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.M{"$or": or}
}

func containsPattern(value string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(value), "$options": "i"}
}

func updateFields(upd ports.ArticleUpdate, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if upd.Category != nil {
		set["category"] = *upd.Category
	}
	if upd.Author != nil {
		set["author"] = *upd.Author
	}
	if upd.Tags != nil {
		set["tags"] = *upd.Tags
	}
	if upd.BodyHTML != nil {
		set["body_html"] = *upd.BodyHTML
	}
	if upd.BodyText != nil {
		set["body_text"] = *upd.BodyText
	}
	if upd.ImageRefs != nil {
		set["image_refs"] = upd.ImageRefs
	}
	if upd.TitleTranslated != nil {
		set["title_translated"] = *upd.TitleTranslated
	}
	if upd.BodyTranslated != nil {
		set["body_translated"] = *upd.BodyTranslated
	}
	return set
}

func normaliseDoc(doc articleDoc) domain.Article {
	a := doc.Article
	if a.ImageRefs == nil {
		a.ImageRefs = []string{}
	}
	return a
}
