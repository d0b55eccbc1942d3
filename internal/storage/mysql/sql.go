package mysql

const insertDeliverySQL = `
INSERT INTO deliveries
  (run_id, platform, review_id, rating, author, reviewed_at, status, error)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
`

// Newest first; matches the (platform, created_at, id) index.
const listDeliveriesSQL = `
SELECT id, run_id, platform, review_id, rating, author, reviewed_at, status, error, created_at
FROM deliveries
WHERE (? IS NULL OR platform = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?
`
