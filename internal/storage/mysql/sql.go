package mysql

const upsertPropertySQL = `
INSERT INTO properties
  (id, slug, name, category, country, city, summary, price_from, images, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  slug       = VALUES(slug),
  name       = VALUES(name),
  category   = VALUES(category),
  country    = VALUES(country),
  city       = VALUES(city),
  summary    = VALUES(summary),
  price_from = VALUES(price_from),
  images     = VALUES(images),
  raw        = VALUES(raw),
  updated_at = CURRENT_TIMESTAMP
`

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewsPrefix = "INSERT INTO reviews\n" +
	"  (property_id, source_id, author, title, `text`, overall_rating, service_rating, facilities_rating,\n" +
	"   dining_rating, value_rating, goal_achievement, status, created_at, raw)\nVALUES "

// Ratings and outcome are replaced wholesale so a corrected review can drop a
// dimension; free text keeps its old value when the feed sends NULL.
// created_at is left alone so a re-ingest never reorders the list.
const insertReviewsOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  author            = COALESCE(VALUES(author), reviews.author),\n" +
	"  title             = COALESCE(VALUES(title), reviews.title),\n" +
	"  `text`            = COALESCE(VALUES(`text`), reviews.`text`),\n" +
	"  overall_rating    = VALUES(overall_rating),\n" +
	"  service_rating    = VALUES(service_rating),\n" +
	"  facilities_rating = VALUES(facilities_rating),\n" +
	"  dining_rating     = VALUES(dining_rating),\n" +
	"  value_rating      = VALUES(value_rating),\n" +
	"  goal_achievement  = VALUES(goal_achievement),\n" +
	"  status            = VALUES(status),\n" +
	"  raw               = COALESCE(VALUES(raw), reviews.raw)\n"

const insertMissSQL = `
INSERT INTO ingest_misses (slug, http_status, reason)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  http_status = VALUES(http_status),
  reason      = VALUES(reason),
  seen_at     = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const propertyColumns = `
SELECT
  p.id,
  p.slug,
  p.name,
  p.category,
  p.country,
  p.city,
  p.summary,
  p.price_from,
  p.images
FROM properties p`

const getPropertyBySlugSQL = propertyColumns + `
WHERE p.slug = ?
`

const reviewColumns = "SELECT id, property_id, author, title, `text`, overall_rating, service_rating,\n" +
	"  facilities_rating, dining_rating, value_rating, goal_achievement, status, created_at\n" +
	"FROM reviews\n"

// Aggregation input; only moderated-in reviews count.
const listReviewRecordsSQL = `
SELECT overall_rating, service_rating, facilities_rating, dining_rating, value_rating, goal_achievement
FROM reviews
WHERE property_id = ? AND status = 'APPROVED'
`
