// Package mongo implements the catalog store on MongoDB: faculties with
// embedded course arrays and a separate collection of standalone courses.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/examacademy/academy-server/internal/course"
	domerrors "github.com/examacademy/academy-server/internal/errors"
	"github.com/examacademy/academy-server/internal/lookup"
	"github.com/examacademy/academy-server/internal/storage"
)

// Collection names.
const (
	FacultiesCollection = "faculties"
	CoursesCollection   = "courses"
)

const (
	slowQueryThreshold = 100 * time.Millisecond
	disconnectTimeout  = 10 * time.Second
)

// Store is the MongoDB catalog backend.
type Store struct {
	client    *mongo.Client
	faculties *mongo.Collection
	courses   *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

// New connects to uri, verifies the connection and ensures indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		faculties: db.Collection(FacultiesCollection),
		courses:   db.Collection(CoursesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.faculties.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "courses._id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create faculty indexes: %w", err)
	}
	_, err = s.courses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}, {Key: "subcategory", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create course indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// SaveFaculty upserts a faculty by slug, replacing its embedded courses.
func (s *Store) SaveFaculty(ctx context.Context, faculty *course.Faculty) error {
	if err := faculty.Validate(); err != nil {
		return err
	}

	var existing facultyDoc
	err := s.faculties.FindOne(ctx, bson.D{{Key: "slug", Value: faculty.Slug}},
		options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return fmt.Errorf("query faculty slug: %w", err)
	case faculty.ID == "":
		faculty.ID = existing.ID.Hex()
	case !strings.EqualFold(faculty.ID, existing.ID.Hex()):
		return fmt.Errorf("faculty slug %q belongs to %s: %w", faculty.Slug, existing.ID.Hex(), domerrors.ErrConflict)
	}

	storage.PrepareFaculty(faculty)
	doc, err := toFacultyDoc(faculty, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", domerrors.ErrInvalidInput, err)
	}

	start := time.Now()
	_, err = s.faculties.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		slog.ErrorContext(ctx, "failed to save faculty",
			"slug", faculty.Slug,
			"error", err)
		return mapWriteError("save faculty", err)
	}
	warnSlow(ctx, "SaveFaculty", start, "slug", faculty.Slug)
	return nil
}

// SaveStandaloneCourse upserts a course in the courses collection. An ID
// already embedded in a faculty is a conflict.
func (s *Store) SaveStandaloneCourse(ctx context.Context, c *course.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	storage.PrepareStandalone(c)
	doc, err := toCourseDoc(c, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", domerrors.ErrInvalidInput, err)
	}

	owned, err := s.faculties.CountDocuments(ctx, bson.D{{Key: "courses._id", Value: doc.ID}})
	if err != nil {
		return fmt.Errorf("check course owner: %w", err)
	}
	if owned > 0 {
		return fmt.Errorf("course %s is owned by a faculty: %w", c.ID, domerrors.ErrConflict)
	}

	start := time.Now()
	_, err = s.courses.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		slog.ErrorContext(ctx, "failed to save standalone course",
			"course_id", c.ID,
			"error", err)
		return mapWriteError("save standalone course", err)
	}
	warnSlow(ctx, "SaveStandaloneCourse", start, "course_id", c.ID)
	return nil
}

// DeleteFaculty removes a faculty document and, with it, its courses.
func (s *Store) DeleteFaculty(ctx context.Context, slug string) error {
	res, err := s.faculties.DeleteOne(ctx, bson.D{{Key: "slug", Value: slug}})
	if err != nil {
		return fmt.Errorf("delete faculty: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("faculty %q: %w", slug, domerrors.ErrNotFound)
	}
	return nil
}

// DeleteCourse removes a standalone course, or pulls an embedded one out of
// its faculty.
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return fmt.Errorf("course %s: %w", id, domerrors.ErrNotFound)
	}

	res, err := s.courses.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if res.DeletedCount > 0 {
		return nil
	}

	upd, err := s.faculties.UpdateOne(ctx,
		bson.D{{Key: "courses._id", Value: oid}},
		bson.D{{Key: "$pull", Value: bson.D{{Key: "courses", Value: bson.D{{Key: "_id", Value: oid}}}}}},
	)
	if err != nil {
		return fmt.Errorf("pull embedded course: %w", err)
	}
	if upd.ModifiedCount == 0 {
		return fmt.Errorf("course %s: %w", id, domerrors.ErrNotFound)
	}
	return nil
}

// ReplaceCatalog swaps both collections inside a transaction. Transactions
// need a replica set or sharded cluster.
func (s *Store) ReplaceCatalog(ctx context.Context, faculties []course.Faculty, standalone []course.Course) error {
	now := time.Now()
	facultyDocs := make([]any, 0, len(faculties))
	for i := range faculties {
		f := &faculties[i]
		if err := f.Validate(); err != nil {
			return fmt.Errorf("faculty %q: %w", f.Slug, err)
		}
		storage.PrepareFaculty(f)
		doc, err := toFacultyDoc(f, now)
		if err != nil {
			return fmt.Errorf("faculty %q: %w: %w", f.Slug, domerrors.ErrInvalidInput, err)
		}
		facultyDocs = append(facultyDocs, doc)
	}
	courseDocs := make([]any, 0, len(standalone))
	for i := range standalone {
		c := &standalone[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("standalone course %q: %w", c.DisplayName(), err)
		}
		storage.PrepareStandalone(c)
		doc, err := toCourseDoc(c, now)
		if err != nil {
			return fmt.Errorf("standalone course %q: %w: %w", c.DisplayName(), domerrors.ErrInvalidInput, err)
		}
		courseDocs = append(courseDocs, doc)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	start := time.Now()
	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if _, err := s.faculties.DeleteMany(ctx, bson.D{}); err != nil {
			return nil, fmt.Errorf("clear faculties: %w", err)
		}
		if _, err := s.courses.DeleteMany(ctx, bson.D{}); err != nil {
			return nil, fmt.Errorf("clear courses: %w", err)
		}
		if len(facultyDocs) > 0 {
			if _, err := s.faculties.InsertMany(ctx, facultyDocs); err != nil {
				return nil, mapWriteError("insert faculties", err)
			}
		}
		if len(courseDocs) > 0 {
			if _, err := s.courses.InsertMany(ctx, courseDocs); err != nil {
				return nil, mapWriteError("insert courses", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to replace catalog", "error", err)
		return err
	}

	slog.DebugContext(ctx, "batch operation completed",
		"operation", "ReplaceCatalog",
		"faculties", len(facultyDocs),
		"standalone_courses", len(courseDocs),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// GetFacultyBySlug returns the faculty with its courses.
func (s *Store) GetFacultyBySlug(ctx context.Context, slug string) (*course.Faculty, error) {
	var doc facultyDoc
	err := s.faculties.FindOne(ctx, bson.D{{Key: "slug", Value: slug}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("faculty %q: %w", slug, domerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query faculty: %w", err)
	}
	f := fromFacultyDoc(doc)
	return &f, nil
}

// ListFaculties returns every faculty ordered by slug.
func (s *Store) ListFaculties(ctx context.Context) ([]course.Faculty, error) {
	docs, err := s.findFaculties(ctx, bson.D{}, bson.D{{Key: "slug", Value: 1}})
	if err != nil {
		return nil, err
	}
	out := make([]course.Faculty, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromFacultyDoc(doc))
	}
	return out, nil
}

// ListCourses returns both shapes filtered in Go, faculty courses first.
func (s *Store) ListCourses(ctx context.Context, filter storage.CourseFilter) ([]course.Candidate, error) {
	if len(filter.Query) > 100 {
		return nil, fmt.Errorf("search term too long: %w", domerrors.ErrInvalidInput)
	}
	embedded, err := s.embeddedCandidates(ctx, bson.ObjectID{})
	if err != nil {
		return nil, err
	}
	standalone, err := s.standaloneCandidates(ctx, bson.ObjectID{})
	if err != nil {
		return nil, err
	}

	var out []course.Candidate
	for _, cand := range append(embedded, standalone...) {
		if filter.Matches(&cand.Course) {
			out = append(out, cand)
		}
	}
	return out, nil
}

// CountFaculties returns the number of faculty documents.
func (s *Store) CountFaculties(ctx context.Context) (int, error) {
	n, err := s.faculties.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count faculties: %w", err)
	}
	return int(n), nil
}

// CountCourses returns standalone documents plus embedded array lengths.
func (s *Store) CountCourses(ctx context.Context) (int, error) {
	standalone, err := s.courses.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}

	cursor, err := s.faculties.Aggregate(ctx, embeddedCountPipeline())
	if err != nil {
		return 0, fmt.Errorf("count embedded courses: %w", err)
	}
	var totals []struct {
		N int64 `bson:"n"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return 0, fmt.Errorf("decode embedded course count: %w", err)
	}

	total := standalone
	if len(totals) > 0 {
		total += totals[0].N
	}
	return int(total), nil
}

func embeddedCountPipeline() mongo.Pipeline {
	size := bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$courses", bson.A{}}}}}}
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: size}}},
		}}},
	}
}

// FacultyCourseSource returns the lookup view over embedded courses.
func (s *Store) FacultyCourseSource() lookup.Source {
	return lookup.SourceFunc{
		SourceName: storage.FacultySourceName,
		Find: func(ctx context.Context, criteria lookup.Criteria) ([]course.Candidate, error) {
			oid, ok := criteriaObjectID(criteria)
			if !ok {
				return nil, nil
			}
			return s.embeddedCandidates(ctx, oid)
		},
	}
}

// StandaloneCourseSource returns the lookup view over the courses collection.
func (s *Store) StandaloneCourseSource() lookup.Source {
	return lookup.SourceFunc{
		SourceName: storage.StandaloneSourceName,
		Find: func(ctx context.Context, criteria lookup.Criteria) ([]course.Candidate, error) {
			oid, ok := criteriaObjectID(criteria)
			if !ok {
				return nil, nil
			}
			return s.standaloneCandidates(ctx, oid)
		},
	}
}

// criteriaObjectID returns the zero ID when no ObjectID is requested. ok is
// false when one is requested but cannot exist.
func criteriaObjectID(criteria lookup.Criteria) (bson.ObjectID, bool) {
	if criteria.ObjectID == "" {
		return bson.ObjectID{}, true
	}
	oid, err := parseObjectID(criteria.ObjectID)
	return oid, err == nil
}

func (s *Store) embeddedCandidates(ctx context.Context, only bson.ObjectID) ([]course.Candidate, error) {
	filter := bson.D{}
	if !only.IsZero() {
		filter = bson.D{{Key: "courses._id", Value: only}}
	}
	docs, err := s.findFaculties(ctx, filter, bson.D{{Key: "_id", Value: 1}})
	if err != nil {
		return nil, err
	}
	var out []course.Candidate
	for _, doc := range docs {
		out = append(out, facultyCandidates(doc, only)...)
	}
	return out, nil
}

func (s *Store) standaloneCandidates(ctx context.Context, only bson.ObjectID) ([]course.Candidate, error) {
	filter := bson.D{}
	if !only.IsZero() {
		filter = bson.D{{Key: "_id", Value: only}}
	}

	start := time.Now()
	cursor, err := s.courses.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	var docs []courseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode courses: %w", err)
	}
	warnSlow(ctx, "standaloneCandidates", start, "count", len(docs))

	out := make([]course.Candidate, 0, len(docs))
	for _, doc := range docs {
		c := fromCourseDoc(doc)
		c.IsStandalone = true
		out = append(out, course.Candidate{Course: c})
	}
	return out, nil
}

func (s *Store) findFaculties(ctx context.Context, filter, sort bson.D) ([]facultyDoc, error) {
	start := time.Now()
	cursor, err := s.faculties.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("query faculties: %w", err)
	}
	var docs []facultyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode faculties: %w", err)
	}
	warnSlow(ctx, "findFaculties", start, "count", len(docs))
	return docs, nil
}

func mapWriteError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w: %w", op, domerrors.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func warnSlow(ctx context.Context, operation string, start time.Time, args ...any) {
	duration := time.Since(start)
	if duration <= slowQueryThreshold {
		return
	}
	attrs := append([]any{"operation", operation, "duration_ms", duration.Milliseconds()}, args...)
	slog.WarnContext(ctx, "slow query detected", attrs...)
}
