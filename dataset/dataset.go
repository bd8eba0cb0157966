// Package dataset loads checkout fixtures (users, products, addresses,
// payment methods) from YAML files, with environment variable fallback
// for credentials so secrets stay out of the data directory.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// User holds login credentials for a storefront account.
type User struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Product describes an item to search for and add to the cart.
type Product struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Query    string `yaml:"query"`
}

// Address is a shipping address keyed by country code in the fixture
// file.
type Address struct {
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	Street     string `yaml:"street"`
	City       string `yaml:"city"`
	PostalCode string `yaml:"postal_code"`
	Country    string `yaml:"country"`
	Phone      string `yaml:"phone"`
}

// Card holds payment method details.
type Card struct {
	Type        string `yaml:"type"`
	Number      string `yaml:"card_number"`
	ExpiryMonth string `yaml:"expiry_month"`
	ExpiryYear  string `yaml:"expiry_year"`
	CVC         string `yaml:"cvc"`
}

// Expiry formats the card expiry as MM/YY for single-field forms.
func (c Card) Expiry() string {
	year := c.ExpiryYear
	if len(year) == 4 {
		year = year[2:]
	}
	return fmt.Sprintf("%s/%s", c.ExpiryMonth, year)
}

type usersFile struct {
	Users map[string]User `yaml:"users"`
}

type productsFile struct {
	Products []Product `yaml:"products"`
}

type addressesFile struct {
	Addresses map[string]Address `yaml:"addresses"`
}

type paymentsFile struct {
	PaymentMethods map[string]Card `yaml:"payment_methods"`
}

// Store reads fixture files from a data directory, caching file
// contents so concurrent sessions do not hit the disk repeatedly.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewStore creates a fixture store rooted at dir. The directory does
// not need to exist; every accessor has a fallback.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string][]byte),
	}
}

// User returns credentials for the named account kind ("standard",
// "admin", ...). When the fixture file is missing or has no entry for
// the kind, it falls back to <KIND>_USER_EMAIL / <KIND>_USER_PASSWORD
// environment variables, then to demo defaults.
func (s *Store) User(kind string) (User, error) {
	var f usersFile
	if err := s.load("users.yaml", &f); err != nil {
		return User{}, err
	}

	if u, ok := f.Users[kind]; ok && u.Email != "" {
		return u, nil
	}

	prefix := strings.ToUpper(kind)
	u := User{
		Email:    os.Getenv(prefix + "_USER_EMAIL"),
		Password: os.Getenv(prefix + "_USER_PASSWORD"),
	}
	if u.Email == "" {
		u.Email = "demo@example.com"
	}
	if u.Password == "" {
		u.Password = "demo123"
	}
	return u, nil
}

// Products returns the product fixtures, filtered by category when one
// is given. A missing fixture file yields a built-in default list.
func (s *Store) Products(category string) ([]Product, error) {
	var f productsFile
	if err := s.load("products.yaml", &f); err != nil {
		return nil, err
	}

	products := f.Products
	if len(products) == 0 {
		products = defaultProducts()
	}

	if category == "" {
		return products, nil
	}

	var filtered []Product
	for _, p := range products {
		if p.Category == category {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// Address returns the shipping address for a country code, falling
// back to a built-in US address.
func (s *Store) Address(country string) (Address, error) {
	var f addressesFile
	if err := s.load("addresses.yaml", &f); err != nil {
		return Address{}, err
	}

	if a, ok := f.Addresses[country]; ok {
		return a, nil
	}
	return DefaultAddress(), nil
}

// Payment returns the payment method fixture for the given type
// ("credit_card", "credit_card_declined", ...), falling back to a
// built-in test card.
func (s *Store) Payment(method string) (Card, error) {
	var f paymentsFile
	if err := s.load("payments.yaml", &f); err != nil {
		return Card{}, err
	}

	if c, ok := f.PaymentMethods[method]; ok {
		return c, nil
	}
	return DefaultCard(), nil
}

// load reads and unmarshals a fixture file, consulting the byte cache
// first. A missing file is not an error; v keeps its zero value.
func (s *Store) load(name string, v any) error {
	s.mu.RLock()
	data, ok := s.cache[name]
	s.mu.RUnlock()

	if !ok {
		path := filepath.Join(s.dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				raw = nil
			} else {
				return fmt.Errorf("failed to read fixture %s: %w", name, err)
			}
		}

		s.mu.Lock()
		s.cache[name] = raw
		s.mu.Unlock()
		data = raw
	}

	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse fixture %s: %w", name, err)
	}
	return nil
}

// Invalidate drops the file cache so the next access re-reads from
// disk.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()
}

// DefaultAddress is the shipping address used when no fixture is
// configured.
func DefaultAddress() Address {
	return Address{
		FirstName:  "Test",
		LastName:   "User",
		Street:     "123 Test Street",
		City:       "Test City",
		PostalCode: "12345",
		Country:    "US",
		Phone:      "1234567890",
	}
}

// DefaultCard is a standard test card that mocked payment endpoints
// accept.
func DefaultCard() Card {
	return Card{
		Type:        "credit_card",
		Number:      "4111 1111 1111 1111",
		ExpiryMonth: "12",
		ExpiryYear:  "25",
		CVC:         "123",
	}
}

func defaultProducts() []Product {
	return []Product{
		{Name: "Apple Juice", Category: "beverages", Query: "juice"},
		{Name: "Monospace Tee", Category: "apparel", Query: "tee"},
		{Name: "Battle-Tested Mug", Category: "accessories", Query: "mug"},
	}
}
