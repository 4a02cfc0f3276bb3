package record

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prompt TEXT NOT NULL,
    model_answer TEXT NOT NULL,
    best_model TEXT,
    created_at INTEGER NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS records (
    id BIGSERIAL PRIMARY KEY,
    prompt TEXT NOT NULL,
    model_answer JSONB NOT NULL,
    best_model TEXT,
    created_at BIGINT NOT NULL
);
`

// statements holds the driver-specific queries.
type statements struct {
	schema       string
	insert       string
	list         string
	get          string
	getForUpdate string
	update       string
	remove       string
}

func statementsForDriver(driver string) (*statements, error) {
	switch driver {
	case SQLiteDriver:
		return &statements{
			schema:       sqliteSchema,
			insert:       `INSERT INTO records (prompt, model_answer, best_model, created_at) VALUES (?, ?, ?, ?) RETURNING id;`,
			list:         `SELECT id, prompt, model_answer, best_model, created_at FROM records ORDER BY id DESC;`,
			get:          `SELECT id, prompt, model_answer, best_model, created_at FROM records WHERE id = ?;`,
			getForUpdate: `SELECT id, prompt, model_answer, best_model, created_at FROM records WHERE id = ?;`,
			update:       `UPDATE records SET model_answer = ? WHERE id = ?;`,
			remove:       `DELETE FROM records WHERE id = ?;`,
		}, nil
	case PostgresDriver:
		return &statements{
			schema:       postgresSchema,
			insert:       `INSERT INTO records (prompt, model_answer, best_model, created_at) VALUES ($1, $2, $3, $4) RETURNING id;`,
			list:         `SELECT id, prompt, model_answer::text, best_model, created_at FROM records ORDER BY id DESC;`,
			get:          `SELECT id, prompt, model_answer::text, best_model, created_at FROM records WHERE id = $1;`,
			getForUpdate: `SELECT id, prompt, model_answer::text, best_model, created_at FROM records WHERE id = $1 FOR UPDATE;`,
			update:       `UPDATE records SET model_answer = $1 WHERE id = $2;`,
			remove:       `DELETE FROM records WHERE id = $1;`,
		}, nil
	default:
		return nil, unsupportedDriverError(driver)
	}
}
