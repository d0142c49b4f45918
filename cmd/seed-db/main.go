// Command seed-db applies migrations and loads demo data: the product
// catalog, one user per role with bearer tokens, and an unclaimed demo order.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/islandgrocer/islandgrocer/internal/handler"
	"github.com/islandgrocer/islandgrocer/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description"`
	InStock     bool            `json:"inStock"`
}

type seedUser struct {
	id    string
	email string
	name  string
	role  string
	token string
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		tokenPepper   string
		customerToken string
		driverToken   string
		driver2Token  string
		adminToken    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&tokenPepper, "token-pepper", "", "HMAC pepper for token hashing (or GROCER_TOKEN_PEPPER env)")
	flag.StringVar(&customerToken, "customer-token", "demo-customer-token", "bearer token for the demo customer")
	flag.StringVar(&driverToken, "driver-token", "demo-driver-token", "bearer token for the first demo driver")
	flag.StringVar(&driver2Token, "driver2-token", "demo-driver2-token", "bearer token for the second demo driver")
	flag.StringVar(&adminToken, "admin-token", "demo-admin-token", "bearer token for the demo admin")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if tokenPepper == "" {
		tokenPepper = os.Getenv("GROCER_TOKEN_PEPPER")
	}

	users := []seedUser{
		{id: "u-maria", email: "maria@islandgrocer.test", name: "Maria Santos", role: "customer", token: customerToken},
		{id: "u-miguel", email: "miguel@islandgrocer.test", name: "Miguel Rodriguez", role: "driver", token: driverToken},
		{id: "u-anna", email: "anna@islandgrocer.test", name: "Anna Flores", role: "driver", token: driver2Token},
		{id: "u-david", email: "david@islandgrocer.test", name: "David Kim", role: "admin", token: adminToken},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, tokenPepper, users); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, pepper string, users []seedUser) error {
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

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedUsers(ctx, pool, users, pepper); err != nil {
		return errors.Wrap(err, "seed users")
	}

	if err := seedOrders(ctx, pool); err != nil {
		return errors.Wrap(err, "seed orders")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
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
		if _, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, price, category, image_url, description, in_stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				category = EXCLUDED.category,
				image_url = EXCLUDED.image_url,
				description = EXCLUDED.description,
				in_stock = EXCLUDED.in_stock`,
			p.ID, p.Name, p.Price, p.Category, p.ImageURL, p.Description, p.InStock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, users []seedUser, pepper string) error {
	slog.Info("seeding demo users", slog.Int("count", len(users)))

	for _, u := range users {
		if _, err := pool.Exec(ctx, `
			INSERT INTO users (id, email, name, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				name = EXCLUDED.name,
				role = EXCLUDED.role`,
			u.id, u.email, u.name, u.role,
		); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.id)
		}

		hash := handler.HashToken(u.token, []byte(pepper))
		if _, err := pool.Exec(ctx, `
			INSERT INTO auth_tokens (token_hash, user_id)
			VALUES ($1, $2)
			ON CONFLICT (token_hash) DO UPDATE SET user_id = EXCLUDED.user_id`,
			hash, u.id,
		); err != nil {
			return errors.Wrapf(err, "upsert token for user %s", u.id)
		}

		slog.Info("seeded user", slog.String("id", u.id), slog.String("role", u.role))
	}

	return nil
}

// seedOrders inserts one unclaimed demo order so the driver pool is not empty
// on a fresh database. DO NOTHING keeps re-runs from resetting an order a
// driver has already picked up.
func seedOrders(ctx context.Context, pool *pgxpool.Pool) error {
	const orderID = "o-demo-1"

	tag, err := pool.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, address, delivery_window, total)
		VALUES ($1, $2, 'new', $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		orderID, "u-maria", "12 Shore Rd, Porto Verde", "Today 5-7 PM", decimal.RequireFromString("10.48"),
	)
	if err != nil {
		return errors.Wrap(err, "insert demo order")
	}
	if tag.RowsAffected() == 0 {
		slog.Info("demo order already present", slog.String("id", orderID))
		return nil
	}

	items := []struct {
		id, productID, name string
		unitPrice           string
		quantity            int
		substitution        string
	}{
		{"oi-demo-1", "p-1", "Fresh Bananas", "2.99", 2, "similar"},
		{"oi-demo-2", "p-2", "Whole Milk", "4.50", 1, "none"},
	}
	for i, it := range items {
		if _, err := pool.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, name, unit_price, quantity, substitution)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			it.id, orderID, i, it.productID, it.name,
			decimal.RequireFromString(it.unitPrice), it.quantity, it.substitution,
		); err != nil {
			return errors.Wrapf(err, "insert demo order item %s", it.id)
		}
	}

	slog.Info("seeded demo order", slog.String("id", orderID))
	return nil
}
