// Package flow implements the checkout journey: login, product search,
// add to cart, checkout, shipping, and mocked payment. It drives the
// page through a Driver interface so the sequence can be tested without
// a browser.
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cartflowhq/cartflow-go/dataset"
)

// Step identifies one stage of the checkout journey.
type Step string

const (
	StepLogin             Step = "login"
	StepSearch            Step = "search"
	StepAddToCart         Step = "add_to_cart"
	StepProceedToCheckout Step = "proceed_to_checkout"
	StepHandleCaptcha     Step = "handle_captcha"
	StepFillShipping      Step = "fill_shipping_details"
	StepSelectShipping    Step = "select_shipping_method"
	StepPayment           Step = "payment"
)

// Steps returns the checkout steps in execution order.
func Steps() []Step {
	return []Step{
		StepLogin,
		StepSearch,
		StepAddToCart,
		StepProceedToCheckout,
		StepHandleCaptcha,
		StepFillShipping,
		StepSelectShipping,
		StepPayment,
	}
}

// Status is the outcome of a checkout run.
type Status string

const (
	// StatusPending means the run has not finished yet.
	StatusPending Status = "pending"
	// StatusSuccess means every step completed.
	StatusSuccess Status = "success"
	// StatusFailed means a step failed in an expected way.
	StatusFailed Status = "failed"
	// StatusError means the run was cut short by a timeout or
	// cancellation.
	StatusError Status = "error"
)

// Result captures one user session's checkout outcome.
type Result struct {
	UserID         int           `json:"user_id"`
	Status         Status        `json:"status"`
	StepsCompleted []Step        `json:"steps_completed"`
	Screenshots    []string      `json:"screenshots,omitempty"`
	OrderID        string        `json:"order_id,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"-"`
	DurationMS     int64         `json:"duration_ms"`
}

// StepError marks a failure in a specific checkout step.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Driver is the page automation surface the flow needs. Variadic
// selectors are tried in order, so callers can give fallbacks for
// markup variants.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selectors ...string) error
	ClickNth(ctx context.Context, selector string, n int) error
	Fill(ctx context.Context, value string, selectors ...string) error
	Submit(ctx context.Context, selectors ...string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Visible(ctx context.Context, selector string) bool
	Count(ctx context.Context, selector string) int
	Text(ctx context.Context, selector string) (string, error)
	Eval(ctx context.Context, js string) (string, error)
	CaptureAndSave(ctx context.Context, name string) (string, error)
}

// Storefront selectors. data-testid attributes are the stable contract
// with the demo shop markup.
const (
	selLoginSubmit       = "button[type='submit']"
	selLoginEmail        = "input[name='email']"
	selLoginPassword     = "input[name='password']"
	selLoggedInMarker    = ".navbar-user-email"
	selSearchButton      = "[data-testid='search-button']"
	selSearchInput       = "[placeholder='Search products']"
	selSearchInputAlt    = "input[type='search']"
	selProductsList      = "[data-testid='productsList']"
	selProductTile       = "[data-testid='productTile']"
	selAddToCart         = "[data-testid='addProductToCartButton']"
	selVariantButtons    = "[data-testid='variantSelector'] button"
	selCartCounter       = "[data-testid='cartCounter']"
	selCartSidebar       = "[data-testid='cartSidebar']"
	selCheckoutButton    = "[data-testid='checkoutButton']"
	selCheckoutHeader    = "[data-testid='checkoutPageHeader']"
	selCaptcha           = "#captcha, .g-recaptcha, iframe[title*='recaptcha']"
	selShippingForm      = "[data-testid='shippingAddressForm']"
	selContinueShipping  = "[data-testid='continueToShippingButton']"
	selShippingList      = "[data-testid='shippingMethodList']"
	selShippingOption    = "[data-testid='shippingMethodOption']"
	selContinuePayment   = "[data-testid='continueToPaymentButton']"
	selPaymentForm       = "[data-testid='paymentForm']"
	selCreditCardForm    = "[data-testid='creditCardForm']"
	selPaymentMethod     = "[data-testid='paymentMethod']"
	selPlaceOrder        = "[data-testid='placeOrderButton']"
	selOrderConfirmation = "[data-testid='orderConfirmation']"
	selOrderNumber       = "[data-testid='orderNumber']"
)

// captchaBypassJS injects a mock verification token into any reCAPTCHA
// widget. Only works on test environments set up to accept it.
const captchaBypassJS = `(function() {
	if (typeof grecaptcha !== 'undefined') {
		const field = document.querySelector('[name="g-recaptcha-response"]');
		if (field) field.innerHTML = 'MOCKED_CAPTCHA_RESPONSE';
		if (typeof captchaCallback === 'function') {
			captchaCallback('MOCKED_CAPTCHA_RESPONSE');
		}
	}
})()`

// Config holds everything one checkout run needs.
type Config struct {
	// BaseURL is the storefront root, for example https://demo.saleor.io.
	BaseURL string

	// LoginPath is appended to BaseURL for the login page. Defaults to
	// /account/login/.
	LoginPath string

	User    dataset.User
	Product dataset.Product
	Address dataset.Address
	Card    dataset.Card

	// StepTimeout bounds waits inside individual steps. Defaults to 10s.
	StepTimeout time.Duration

	Logger *log.Logger
}

// Checkout runs the journey for one user session.
type Checkout struct {
	driver Driver
	cfg    Config
}

// New creates a checkout runner over the given driver.
func New(driver Driver, cfg Config) *Checkout {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/account/login/"
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &Checkout{driver: driver, cfg: cfg}
}

// Run executes all checkout steps for the given user and returns the
// result. Step failures yield StatusFailed; a cancelled or timed-out
// context yields StatusError.
func (c *Checkout) Run(ctx context.Context, userID int) Result {
	start := time.Now()
	logger := c.cfg.Logger.With("user", userID)

	result := Result{
		UserID: userID,
		Status: StatusPending,
	}
	defer func() {
		result.Duration = time.Since(start)
		result.DurationMS = result.Duration.Milliseconds()
	}()

	steps := []struct {
		step Step
		run  func(context.Context, int, *log.Logger) error
	}{
		{StepLogin, c.login},
		{StepSearch, c.search},
		{StepAddToCart, c.addToCart},
		{StepProceedToCheckout, c.proceedToCheckout},
		{StepHandleCaptcha, c.handleCaptcha},
		{StepFillShipping, c.fillShippingDetails},
		{StepSelectShipping, c.selectShippingMethod},
		{StepPayment, c.payment},
	}

	for _, s := range steps {
		logger.Info("running step", "step", s.step)

		if err := s.run(ctx, userID, logger); err != nil {
			c.capture(ctx, &result, userID, string(s.step)+"_failed")

			if ctx.Err() != nil {
				result.Status = StatusError
				result.Error = fmt.Sprintf("unexpected error: %v", ctx.Err())
				logger.Error("checkout aborted", "step", s.step, "err", ctx.Err())
				return result
			}

			stepErr := &StepError{Step: s.step, Err: err}
			result.Status = StatusFailed
			result.Error = stepErr.Error()
			logger.Error("checkout failed", "step", s.step, "err", err)
			return result
		}

		result.StepsCompleted = append(result.StepsCompleted, s.step)
	}

	// Order ID is informational; failing to read it does not fail the run.
	if id, err := c.driver.Text(ctx, selOrderNumber); err == nil {
		result.OrderID = strings.TrimSpace(id)
	} else {
		logger.Warn("could not extract order ID", "err", err)
	}

	c.capture(ctx, &result, userID, "checkout_complete")

	result.Status = StatusSuccess
	logger.Info("checkout completed", "order_id", result.OrderID)
	return result
}

// capture takes a best-effort screenshot and records its path.
func (c *Checkout) capture(ctx context.Context, result *Result, userID int, name string) {
	path, err := c.driver.CaptureAndSave(ctx, fmt.Sprintf("user_%d_%s", userID, name))
	if err == nil && path != "" {
		result.Screenshots = append(result.Screenshots, path)
	}
}

func (c *Checkout) login(ctx context.Context, userID int, logger *log.Logger) error {
	if err := c.driver.Navigate(ctx, c.cfg.BaseURL+c.cfg.LoginPath); err != nil {
		return err
	}
	if err := c.driver.WaitVisible(ctx, selLoginSubmit, c.cfg.StepTimeout); err != nil {
		return err
	}

	if err := c.driver.Fill(ctx, c.cfg.User.Email, selLoginEmail); err != nil {
		return err
	}
	if err := c.driver.Fill(ctx, c.cfg.User.Password, selLoginPassword); err != nil {
		return err
	}
	if err := c.driver.Click(ctx, selLoginSubmit); err != nil {
		return err
	}

	if err := c.driver.WaitVisible(ctx, selLoggedInMarker, c.cfg.StepTimeout); err != nil {
		return fmt.Errorf("login did not complete: %w", err)
	}

	logger.Debug("login successful", "email", c.cfg.User.Email)
	return nil
}

func (c *Checkout) search(ctx context.Context, userID int, logger *log.Logger) error {
	query := c.cfg.Product.Query
	if query == "" {
		query = c.cfg.Product.Name
	}

	if err := c.driver.Click(ctx, selSearchButton); err != nil {
		return err
	}
	if err := c.driver.Fill(ctx, query, selSearchInput, selSearchInputAlt); err != nil {
		return err
	}
	if err := c.driver.Submit(ctx, selSearchInput, selSearchInputAlt); err != nil {
		return err
	}

	if err := c.driver.WaitVisible(ctx, selProductsList, c.cfg.StepTimeout); err != nil {
		return err
	}

	n := c.driver.Count(ctx, selProductTile)
	if n == 0 {
		return fmt.Errorf("no products found for %q", query)
	}

	logger.Debug("search results", "query", query, "products", n)
	return nil
}

func (c *Checkout) addToCart(ctx context.Context, userID int, logger *log.Logger) error {
	n := c.driver.Count(ctx, selProductTile)
	if n == 0 {
		return errors.New("no products available to add to cart")
	}

	// Pick one of the first three results so parallel sessions do not
	// all hammer the same product page.
	idx := rand.IntN(min(3, n))
	if err := c.driver.ClickNth(ctx, selProductTile, idx); err != nil {
		return err
	}

	if err := c.driver.WaitVisible(ctx, selAddToCart, c.cfg.StepTimeout); err != nil {
		return err
	}

	if variants := c.driver.Count(ctx, selVariantButtons); variants > 0 {
		if err := c.driver.ClickNth(ctx, selVariantButtons, rand.IntN(variants)); err != nil {
			return err
		}
	}

	if err := c.driver.Click(ctx, selAddToCart); err != nil {
		return err
	}
	if err := c.driver.WaitVisible(ctx, selCartCounter, c.cfg.StepTimeout); err != nil {
		return fmt.Errorf("cart counter never appeared: %w", err)
	}

	logger.Debug("product added to cart", "tile", idx)
	return nil
}

func (c *Checkout) proceedToCheckout(ctx context.Context, userID int, logger *log.Logger) error {
	if err := c.driver.Click(ctx, selCartCounter); err != nil {
		return err
	}
	if err := c.driver.WaitVisible(ctx, selCartSidebar, c.cfg.StepTimeout); err != nil {
		return err
	}

	if err := c.driver.Click(ctx, selCheckoutButton); err != nil {
		return err
	}
	// The checkout page does a full reload on some storefronts, give it
	// longer than the default step timeout.
	if err := c.driver.WaitVisible(ctx, selCheckoutHeader, c.cfg.StepTimeout+5*time.Second); err != nil {
		return err
	}
	return nil
}

func (c *Checkout) handleCaptcha(ctx context.Context, userID int, logger *log.Logger) error {
	if !c.driver.Visible(ctx, selCaptcha) {
		return nil
	}

	logger.Info("captcha detected, injecting mock response")
	if _, err := c.driver.Eval(ctx, captchaBypassJS); err != nil {
		return fmt.Errorf("captcha bypass failed: %w", err)
	}
	return nil
}

func (c *Checkout) fillShippingDetails(ctx context.Context, userID int, logger *log.Logger) error {
	if !c.driver.Visible(ctx, selShippingForm) {
		logger.Debug("shipping details already filled or not required")
		return nil
	}

	addr := c.cfg.Address
	lastName := addr.LastName
	if lastName == "" || lastName == "User" {
		lastName = fmt.Sprintf("User%d", userID)
	}

	fields := []struct {
		value    string
		selector string
	}{
		{addr.FirstName, "[name='firstName']"},
		{lastName, "[name='lastName']"},
		{addr.Street, "[name='streetAddress1']"},
		{addr.City, "[name='city']"},
		{addr.PostalCode, "[name='postalCode']"},
	}
	for _, f := range fields {
		if err := c.driver.Fill(ctx, f.value, f.selector); err != nil {
			return err
		}
	}

	// Phone is optional on some storefronts.
	if addr.Phone != "" && c.driver.Visible(ctx, "[name='phone']") {
		if err := c.driver.Fill(ctx, addr.Phone, "[name='phone']"); err != nil {
			return err
		}
	}

	if err := c.driver.Click(ctx, selContinueShipping); err != nil {
		return err
	}

	// Either the shipping method list or the payment form comes next,
	// depending on whether the storefront needs a method choice.
	waitFor := selShippingList + ", " + selPaymentForm
	if err := c.driver.WaitVisible(ctx, waitFor, c.cfg.StepTimeout); err != nil {
		return fmt.Errorf("stuck after shipping details: %w", err)
	}
	return nil
}

func (c *Checkout) selectShippingMethod(ctx context.Context, userID int, logger *log.Logger) error {
	if !c.driver.Visible(ctx, selShippingList) {
		logger.Debug("shipping method already selected or not required")
		return nil
	}

	n := c.driver.Count(ctx, selShippingOption)
	if n == 0 {
		return errors.New("no shipping methods available")
	}

	if err := c.driver.ClickNth(ctx, selShippingOption, 0); err != nil {
		return err
	}
	if err := c.driver.Click(ctx, selContinuePayment); err != nil {
		return err
	}
	if err := c.driver.WaitVisible(ctx, selPaymentForm, c.cfg.StepTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Checkout) payment(ctx context.Context, userID int, logger *log.Logger) error {
	if c.driver.Visible(ctx, selCreditCardForm) {
		card := c.cfg.Card
		if err := c.driver.Fill(ctx, card.Number, "[name='cardNumber']"); err != nil {
			return err
		}
		if err := c.driver.Fill(ctx, card.Expiry(), "[name='expDate']"); err != nil {
			return err
		}
		if err := c.driver.Fill(ctx, card.CVC, "[name='cvc']"); err != nil {
			return err
		}
	} else if n := c.driver.Count(ctx, selPaymentMethod); n > 0 {
		if err := c.driver.ClickNth(ctx, selPaymentMethod, 0); err != nil {
			return err
		}
	} else {
		logger.Warn("no payment methods found, continuing")
	}

	if err := c.driver.Click(ctx, selPlaceOrder); err != nil {
		return err
	}
	// Confirmation involves the (mocked) payment round trip.
	if err := c.driver.WaitVisible(ctx, selOrderConfirmation, c.cfg.StepTimeout+5*time.Second); err != nil {
		return fmt.Errorf("order confirmation never appeared: %w", err)
	}
	return nil
}
