// Package shoptest provides a self-contained demo storefront for
// exercising checkout journeys without a real shop. It serves a small
// single-page store whose markup carries the data-testid attributes
// the checkout flow drives, plus a payment endpoint the request mocks
// normally intercept.
package shoptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

var orderSeq atomic.Int64

// Handler returns an http.Handler serving the demo storefront.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", serveStore)
	mux.HandleFunc("/account/login/", serveStore)
	mux.HandleFunc("/api/payment/process", servePayment)
	return mux
}

// NewServer starts an httptest server for the demo storefront. The
// caller must Close it.
func NewServer() *httptest.Server {
	return httptest.NewServer(Handler())
}

func serveStore(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, storePage)
}

func servePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	order := orderSeq.Add(1)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "success",
		"order_id": fmt.Sprintf("ORD-%05d", order),
	})
}

// storePage is a single-page store. Page sections are toggled by the
// inline script as the journey progresses; the markup mirrors the
// attribute contract the flow selectors rely on.
const storePage = `<!DOCTYPE html>
<html>
<head>
<title>Demo Store</title>
<style>
  .page { display: none; }
  .page.active { display: block; }
  #cart-sidebar { display: none; }
  #cart-sidebar.open { display: block; }
</style>
</head>
<body>

<nav>
  <span class="navbar-user-email"></span>
  <span data-testid="cartCounter">0</span>
</nav>

<section id="login-page" class="page active">
  <form id="login-form">
    <input name="email" type="email">
    <input name="password" type="password">
    <button type="submit">Sign in</button>
  </form>
</section>

<section id="store-page" class="page">
  <input placeholder="Search products" type="text">
  <button data-testid="search-button">Search</button>
  <ul data-testid="productsList">
    <li data-testid="productTile">
      <h3>Monospace Tee</h3>
      <div data-testid="variantSelector">
        <button data-value="S">S</button>
        <button data-value="M">M</button>
        <button data-value="L">L</button>
      </div>
      <button data-testid="addProductToCartButton">Add to cart</button>
    </li>
    <li data-testid="productTile">
      <h3>Code Division Hoodie</h3>
      <button data-testid="addProductToCartButton">Add to cart</button>
    </li>
    <li data-testid="productTile">
      <h3>White Plimsolls</h3>
      <button data-testid="addProductToCartButton">Add to cart</button>
    </li>
  </ul>
  <aside id="cart-sidebar" data-testid="cartSidebar">
    <button data-testid="checkoutButton">Checkout</button>
  </aside>
</section>

<section id="checkout-page" class="page">
  <h1 data-testid="checkoutPageHeader">Checkout</h1>

  <form data-testid="shippingAddressForm">
    <input name="firstName">
    <input name="lastName">
    <input name="streetAddress1">
    <input name="city">
    <input name="postalCode">
    <input name="phone">
    <button type="button" data-testid="continueToShippingButton">Continue to shipping</button>
  </form>

  <div data-testid="shippingMethodList" style="display:none">
    <label data-testid="shippingMethodOption"><input type="radio" name="shipping"> Standard</label>
    <label data-testid="shippingMethodOption"><input type="radio" name="shipping"> Express</label>
    <button type="button" data-testid="continueToPaymentButton">Continue to payment</button>
  </div>

  <form data-testid="paymentForm" style="display:none">
    <div data-testid="creditCardForm">
      <input name="cardNumber">
      <input name="expDate">
      <input name="cvc">
    </div>
    <button type="button" data-testid="placeOrderButton">Place order</button>
  </form>
</section>

<section id="confirmation-page" class="page">
  <div data-testid="orderConfirmation">
    <h1>Thank you for your order!</h1>
    <p data-testid="orderNumber"></p>
  </div>
</section>

<script>
function show(id) {
  document.querySelectorAll('.page').forEach(function (p) {
    p.classList.toggle('active', p.id === id);
  });
}

document.getElementById('login-form').addEventListener('submit', function (e) {
  e.preventDefault();
  var email = this.querySelector('[name=email]').value;
  document.querySelector('.navbar-user-email').textContent = email;
  show('store-page');
});

document.querySelectorAll('[data-testid=addProductToCartButton]').forEach(function (btn) {
  btn.addEventListener('click', function () {
    var counter = document.querySelector('[data-testid=cartCounter]');
    counter.textContent = String(parseInt(counter.textContent, 10) + 1);
    document.getElementById('cart-sidebar').classList.add('open');
  });
});

document.querySelector('[data-testid=checkoutButton]').addEventListener('click', function () {
  show('checkout-page');
});

document.querySelector('[data-testid=continueToShippingButton]').addEventListener('click', function () {
  document.querySelector('[data-testid=shippingMethodList]').style.display = 'block';
});

document.querySelector('[data-testid=continueToPaymentButton]').addEventListener('click', function () {
  document.querySelector('[data-testid=paymentForm]').style.display = 'block';
});

document.querySelector('[data-testid=placeOrderButton]').addEventListener('click', function () {
  fetch('/api/payment/process', {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify({ amount: '100.00', currency: 'USD' })
  }).then(function (res) { return res.json(); }).then(function (data) {
    document.querySelector('[data-testid=orderNumber]').textContent =
      data.order_id || 'ORD-00000';
    show('confirmation-page');
  }).catch(function () {
    document.querySelector('[data-testid=orderNumber]').textContent = 'ORD-00000';
    show('confirmation-page');
  });
});
</script>

</body>
</html>
`
