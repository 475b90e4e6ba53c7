package sqlstore

// Dialect carries the differences between the supported SQL engines
type Dialect struct {
	Name string
	// LockRows appends FOR UPDATE to reads made inside a write transaction
	LockRows bool
	Schema   []string
}

// Postgres is the production dialect
var Postgres = Dialect{
	Name:     "postgres",
	LockRows: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS products (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			descrizione TEXT NOT NULL DEFAULT '',
			pz_x_collo INTEGER NOT NULL DEFAULT 0,
			rapp INTEGER NOT NULL DEFAULT 1,
			settore TEXT NOT NULL,
			disponibilita TEXT NOT NULL DEFAULT 'Si',
			purge_flag BOOLEAN NOT NULL DEFAULT FALSE,
			minimum_stock_override INTEGER,
			PRIMARY KEY (cod, v)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_settore ON products (settore)`,
		`CREATE TABLE IF NOT EXISTS product_stats (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			sold_history JSONB NOT NULL DEFAULT '[]',
			bought_history JSONB NOT NULL DEFAULT '[]',
			recent_daily_sales JSONB NOT NULL DEFAULT '[]',
			stock INTEGER,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			last_update TIMESTAMPTZ,
			PRIMARY KEY (cod, v)
		)`,
		`CREATE TABLE IF NOT EXISTS promotions (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			standard_price NUMERIC(12, 2) NOT NULL,
			sale_price NUMERIC(12, 2) NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (cod, v)
		)`,
		`CREATE TABLE IF NOT EXISTS losses (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			loss_type TEXT NOT NULL,
			history JSONB NOT NULL DEFAULT '[]',
			last_updated TIMESTAMPTZ,
			PRIMARY KEY (cod, v, loss_type)
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			settore TEXT NOT NULL,
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			PRIMARY KEY (settore, cod, v)
		)`,
	},
}

// SQLite is the embedded dialect used for single-file stores and tests
var SQLite = Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS products (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			descrizione TEXT NOT NULL DEFAULT '',
			pz_x_collo INTEGER NOT NULL DEFAULT 0,
			rapp INTEGER NOT NULL DEFAULT 1,
			settore TEXT NOT NULL,
			disponibilita TEXT NOT NULL DEFAULT 'Si',
			purge_flag BOOLEAN NOT NULL DEFAULT 0,
			minimum_stock_override INTEGER,
			PRIMARY KEY (cod, v)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_settore ON products (settore)`,
		`CREATE TABLE IF NOT EXISTS product_stats (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			sold_history TEXT NOT NULL DEFAULT '[]',
			bought_history TEXT NOT NULL DEFAULT '[]',
			recent_daily_sales TEXT NOT NULL DEFAULT '[]',
			stock INTEGER,
			verified BOOLEAN NOT NULL DEFAULT 0,
			last_update TIMESTAMP,
			PRIMARY KEY (cod, v)
		)`,
		`CREATE TABLE IF NOT EXISTS promotions (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			standard_price TEXT NOT NULL,
			sale_price TEXT NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			PRIMARY KEY (cod, v)
		)`,
		`CREATE TABLE IF NOT EXISTS losses (
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			loss_type TEXT NOT NULL,
			history TEXT NOT NULL DEFAULT '[]',
			last_updated TIMESTAMP,
			PRIMARY KEY (cod, v, loss_type)
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			settore TEXT NOT NULL,
			cod INTEGER NOT NULL,
			v INTEGER NOT NULL,
			PRIMARY KEY (settore, cod, v)
		)`,
	},
}
