package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clarus_vitae/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
func valGoal(p *domain.GoalAchievement) any {
	if p == nil || !p.Valid() {
		return nil
	}
	return string(*p)
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}
func nullGoal(ns sql.NullString) *domain.GoalAchievement {
	if !ns.Valid {
		return nil
	}
	g := domain.GoalAchievement(ns.String)
	if !g.Valid() {
		return nil
	}
	return &g
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertProperty(ctx context.Context, p domain.Property) error {
	imgs, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsertPropertySQL,
		p.ID,
		p.Slug,
		p.Name,
		valStr(p.Category),
		valStr(p.Country),
		valStr(p.City),
		valStr(p.Summary),
		valInt(p.PriceFrom),
		string(imgs),
		valJSON(p.RawJSON),
	)
	return err
}

func (r *Repo) UpsertReviews(ctx context.Context, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*14)
	for _, rv := range rs {
		// created_at falls back to the insert time when the feed has no date.
		values = append(values, "(?,?,?,?,?,?,?,?,?,?,?,?,COALESCE(?, CURRENT_TIMESTAMP(3)),?)")
		status := rv.Status
		if status == "" {
			status = domain.ReviewApproved
		}
		args = append(args,
			rv.PropertyID,
			valStr(rv.SourceID),
			valStr(rv.Author),
			valStr(rv.Title),
			valStr(rv.Text),
			valInt(rv.OverallRating),
			valInt(rv.ServiceRating),
			valInt(rv.FacilitiesRating),
			valInt(rv.DiningRating),
			valInt(rv.ValueRating),
			valGoal(rv.GoalAchievement),
			string(status),
			valTime(rv.CreatedAt),
			valJSON(rv.RawJSON),
		)
	}
	sqlStr := insertReviewsPrefix + strings.Join(values, ",") + insertReviewsOnDup
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *Repo) LogMiss(ctx context.Context, slug string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, slug, status, reason)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(sc rowScanner) (domain.PropertyView, error) {
	var (
		pv                            domain.PropertyView
		category, country, city, summ sql.NullString
		price                         sql.NullInt64
		images                        []byte
	)
	if err := sc.Scan(&pv.ID, &pv.Slug, &pv.Name, &category, &country, &city, &summ, &price, &images); err != nil {
		return domain.PropertyView{}, err
	}
	pv.Category = nullStr(category)
	pv.Country = nullStr(country)
	pv.City = nullStr(city)
	pv.Summary = nullStr(summ)
	pv.PriceFrom = nullInt(price)
	if len(images) > 0 {
		_ = json.Unmarshal(images, &pv.Images)
	}
	return pv, nil
}

func (r *Repo) GetPropertyBySlug(ctx context.Context, slug string) (domain.PropertyView, error) {
	pv, err := scanProperty(r.db.QueryRowContext(ctx, getPropertyBySlugSQL, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PropertyView{}, domain.ErrNotFound
	}
	return pv, err
}

// GetPropertiesBySlugs returns the known properties among slugs, in no
// particular order.
func (r *Repo) GetPropertiesBySlugs(ctx context.Context, slugs []string) ([]domain.PropertyView, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(slugs)), ",")
	args := make([]any, len(slugs))
	for i, s := range slugs {
		args[i] = s
	}
	rows, err := r.db.QueryContext(ctx, propertyColumns+"\nWHERE p.slug IN ("+marks+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PropertyView
	for rows.Next() {
		pv, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

// ListProperties fetches one row past the limit to tell whether a next page exists.
func (r *Repo) ListProperties(ctx context.Context, q domain.PropertiesQuery) (domain.PropertiesPage, error) {
	where, args := buildPropertiesWhere(q)
	query := propertyColumns + where + "\nORDER BY " + orderClause(q.Sort) + "\nLIMIT ? OFFSET ?"
	args = append(args, q.Limit+1, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.PropertiesPage{}, err
	}
	defer rows.Close()

	out := make([]domain.PropertyView, 0, q.Limit)
	for rows.Next() {
		pv, err := scanProperty(rows)
		if err != nil {
			return domain.PropertiesPage{}, err
		}
		out = append(out, pv)
	}
	if err := rows.Err(); err != nil {
		return domain.PropertiesPage{}, err
	}

	page := domain.PropertiesPage{Items: out}
	if len(out) > q.Limit {
		page.Items = out[:q.Limit]
		next := q.Offset + q.Limit
		page.NextOffset = &next
	}
	return page, nil
}

// ListReviews pages approved reviews with a keyset cursor "<unix-nanos>:<id>".
// Sort is "-created_at" (default, newest first) or "created_at".
func (r *Repo) ListReviews(ctx context.Context, propertyID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	asc := pg.Sort == "created_at"
	cmp, dir := "<", "DESC"
	if asc {
		cmp, dir = ">", "ASC"
	}

	query := reviewColumns + "WHERE property_id = ? AND status = 'APPROVED'"
	args := []any{propertyID}
	if pg.Cursor != nil {
		at, id, err := DecodeCursor(*pg.Cursor)
		if err != nil {
			return domain.ReviewsPage{}, err
		}
		query += fmt.Sprintf(" AND (created_at %s ? OR (created_at = ? AND id %s ?))", cmp, cmp)
		args = append(args, at, at, id)
	}
	query += fmt.Sprintf("\nORDER BY created_at %s, id %s\nLIMIT ?", dir, dir)
	args = append(args, pg.Limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var (
			rv                                   domain.Review
			author, title, text, goal, status    sql.NullString
			overall, service, facilities, dining sql.NullInt64
			value                                sql.NullInt64
			createdAt                            sql.NullTime
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.PropertyID,
			&author,
			&title,
			&text,
			&overall,
			&service,
			&facilities,
			&dining,
			&value,
			&goal,
			&status,
			&createdAt,
		); err != nil {
			return domain.ReviewsPage{}, err
		}
		rv.Author = nullStr(author)
		rv.Title = nullStr(title)
		rv.Text = nullStr(text)
		rv.OverallRating = nullInt(overall)
		rv.ServiceRating = nullInt(service)
		rv.FacilitiesRating = nullInt(facilities)
		rv.DiningRating = nullInt(dining)
		rv.ValueRating = nullInt(value)
		rv.GoalAchievement = nullGoal(goal)
		rv.Status = domain.ReviewStatus(status.String)
		if createdAt.Valid {
			t := createdAt.Time.UTC()
			rv.CreatedAt = &t
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}

	page := domain.ReviewsPage{Items: out}
	if pg.Limit > 0 && len(out) > pg.Limit {
		page.Items = out[:pg.Limit]
		last := page.Items[pg.Limit-1]
		if last.CreatedAt != nil {
			c := EncodeCursor(*last.CreatedAt, last.ID)
			page.NextCursor = &c
		}
	}
	return page, nil
}

func (r *Repo) ListReviewRecords(ctx context.Context, propertyID string) ([]domain.ReviewRecord, error) {
	rows, err := r.db.QueryContext(ctx, listReviewRecordsSQL, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReviewRecord
	for rows.Next() {
		var (
			overall, service, facilities, dining, value sql.NullInt64
			goal                                        sql.NullString
		)
		if err := rows.Scan(&overall, &service, &facilities, &dining, &value, &goal); err != nil {
			return nil, err
		}
		out = append(out, domain.ReviewRecord{
			OverallRating:    nullInt(overall),
			ServiceRating:    nullInt(service),
			FacilitiesRating: nullInt(facilities),
			DiningRating:     nullInt(dining),
			ValueRating:      nullInt(value),
			GoalAchievement:  nullGoal(goal),
		})
	}
	return out, rows.Err()
}

func EncodeCursor(at time.Time, id int64) string {
	return strconv.FormatInt(at.UnixNano(), 10) + ":" + strconv.FormatInt(id, 10)
}

// DecodeCursor rejects anything EncodeCursor did not produce with domain.ErrInvalidCursor.
func DecodeCursor(c string) (time.Time, int64, error) {
	ts, idStr, ok := strings.Cut(c, ":")
	if !ok {
		return time.Time{}, 0, domain.ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidCursor
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidCursor
	}
	return time.Unix(0, nanos).UTC(), id, nil
}
