// Command seed-db loads the catalog seed file and a pair of demo users with
// API keys into PostgreSQL. It is idempotent: rerunning upserts rows in place.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/techtrove/internal/postgres"
)

type productJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Brand           string          `json:"brand"`
	Model           string          `json:"model"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	ManufactureDate string          `json:"manufactureDate"`
	Category        string          `json:"category"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		shopperKey    string
		adminKey      string
		apiKeyPepper  string
		extraShoppers int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&shopperKey, "shopper-key", "", "shopper API key to seed (or TECHTROVE_SEED_SHOPPER_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or TECHTROVE_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TECHTROVE_API_KEY_PEPPER env)")
	flag.IntVar(&extraShoppers, "extra-shoppers", 0, "number of extra numbered shoppers to seed (keys are <shopper-key>-N)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if shopperKey == "" {
		shopperKey = os.Getenv("TECHTROVE_SEED_SHOPPER_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("TECHTROVE_SEED_ADMIN_KEY")
	}
	if shopperKey == "" || adminKey == "" {
		slog.Error("API keys are required: set --shopper-key/--admin-key or the TECHTROVE_SEED_* envs")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TECHTROVE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, shopperKey, adminKey, apiKeyPepper, extraShoppers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, shopperKey, adminKey, pepper string, extraShoppers int) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedUsers(ctx, pool, shopperKey, adminKey, pepper); err != nil {
		return errors.Wrap(err, "seed users")
	}

	if extraShoppers > 0 {
		if err := seedExtraShoppers(ctx, pool, shopperKey, pepper, extraShoppers); err != nil {
			return errors.Wrap(err, "seed extra shoppers")
		}
	}

	return nil
}

const (
	upsertCategorySQL = `
		INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`

	upsertProductSQL = `
		INSERT INTO products (id, name, brand, model, description, price, stock, manufacture_date, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::date, (SELECT id FROM categories WHERE name = $9))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			manufacture_date = EXCLUDED.manufacture_date,
			category_id = EXCLUDED.category_id`

	upsertUserSQL = `
		INSERT INTO users (id, full_name, email, address) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email`

	upsertAPIKeySQL = `
		INSERT INTO api_keys (id, key_hash, user_id, name, admin, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, admin = EXCLUDED.admin, active = TRUE`
)

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if p.Category != "" {
			if _, err := pool.Exec(ctx, upsertCategorySQL, "cat-"+p.Category, p.Category); err != nil {
				return errors.Wrapf(err, "upsert category %s", p.Category)
			}
		}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Brand, p.Model, p.Description,
			p.Price, p.Stock, p.ManufactureDate, p.Category,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, shopperKey, adminKey, pepper string) error {
	slog.Info("seeding demo users and API keys")

	users := []struct {
		id, fullName, email string
		apiKey              string
		admin               bool
	}{
		{"demo-shopper", "Demo Shopper", "shopper@techtrove.test", shopperKey, false},
		{"demo-admin", "Demo Admin", "admin@techtrove.test", adminKey, true},
	}

	for _, u := range users {
		if _, err := pool.Exec(ctx, upsertUserSQL, u.id, u.fullName, u.email, ""); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.id)
		}

		if _, err := pool.Exec(ctx, upsertAPIKeySQL,
			"key-"+u.id, hashKey(u.apiKey, pepper), u.id, u.fullName+" key", u.admin,
		); err != nil {
			return errors.Wrapf(err, "upsert api key for %s", u.id)
		}

		slog.Info("upserted user", slog.String("id", u.id), slog.Bool("admin", u.admin))
	}

	return nil
}

func seedExtraShoppers(ctx context.Context, pool *pgxpool.Pool, shopperKey, pepper string, n int) error {
	slog.Info("seeding extra shoppers", slog.Int("count", n))

	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("demo-shopper-%d", i)
		email := fmt.Sprintf("shopper%d@techtrove.test", i)
		if _, err := pool.Exec(ctx, upsertUserSQL, id, fmt.Sprintf("Demo Shopper %d", i), email, ""); err != nil {
			return errors.Wrapf(err, "upsert user %s", id)
		}

		key := fmt.Sprintf("%s-%d", shopperKey, i)
		if _, err := pool.Exec(ctx, upsertAPIKeySQL,
			"key-"+id, hashKey(key, pepper), id, id+" key", false,
		); err != nil {
			return errors.Wrapf(err, "upsert api key for %s", id)
		}
	}

	return nil
}

func hashKey(apiKey, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	return hex.EncodeToString(mac.Sum(nil))
}
