// cartctl performs one guest cart or checkout operation per invocation.
// State (guest session id, saved checkout form, pending redirect order)
// persists in the configured store, so commands compose across runs.
//
// Commands:
//
//	cartctl cart
//	cartctl add -product ID [-qty N]
//	cartctl set -item ID -qty N
//	cartctl remove -item ID
//	cartctl clear
//	cartctl convert -email ADDR [-first NAME] [-last NAME]
//	cartctl checkout [-provider NAME] [-product ID -qty N] [form flags]
//	cartctl return [-canceled] [-session-id ID] [-order-id ID] [-reason TEXT]
//	cartctl session [-rotate]
//
// Examples:
//
//	cartctl add -product p-mug -qty 2
//	cartctl checkout -provider cod -first Ada -last Lovelace -email ada@example.com \
//	    -phone "+44 20 7946 0958" -street "12 Analytical Way" -city London -postal 12345 -country GB
//	URL=$(cartctl checkout -provider stripe -q)
//	cartctl return -session-id cs_test_123
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"time"

	"guest-checkout/internal/app"
	"guest-checkout/internal/checkout"
	"guest-checkout/internal/completion"
	"guest-checkout/internal/config"
	"guest-checkout/internal/model"
)

// Global flags (apply to all commands)
var (
	quiet   bool
	noColor bool
	verbose bool
	asJSON  bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "set":
		runSet(args)
	case "remove":
		runRemove(args)
	case "clear":
		runClear(args)
	case "convert":
		runConvert(args)
	case "checkout":
		runCheckout(args)
	case "return":
		runReturn(args)
	case "session":
		runSession(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - guest cart and checkout tool

Usage:
  cartctl <command> [options]

Commands:
  cart      Show the current cart
  add       Add a product to the cart
  set       Change an item's quantity (0 removes it)
  remove    Remove an item
  clear     Start a fresh guest session with an empty cart
  convert   Convert the guest cart into a user cart
  checkout  Check out the cart, or a single product with -product
  return    Handle the return from a hosted payment page
  session   Show or rotate the guest session id

Configuration comes from CONFIG_FILE or the environment (API_BASE_URL,
STORE_BACKEND, STATE_DIR, REDIS_ADDR, ...), the same as the storefront.

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the global flags on a command's flag set.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - log requests to stderr")
	fs.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// =============================================================================
// APP LIFECYCLE
// =============================================================================

// withApp wires the components, loads the cart when asked, and runs fn.
func withApp(load bool, fn func(ctx context.Context, a *app.App) error) {
	if noColor {
		disableColors()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}

	a, err := app.New(ctx, cfg, newLogger(), app.WithDurableEphemeral())
	if err != nil {
		fatal("Starting: %v", err)
	}
	defer a.Close()

	if load {
		if err := a.Cart.Load(ctx); err != nil {
			fatal("Loading cart: %s", describe(err))
		}
	}
	if err := fn(ctx, a); err != nil {
		fatal("%s", describe(err))
	}
}

// describe returns the buyer-facing message, plus the cause with -v.
func describe(err error) string {
	msg := model.UserMessage(err)
	if verbose {
		msg += " (" + err.Error() + ")"
	}
	return msg
}

func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart [options]")
	fs.Parse(args)

	withApp(true, func(ctx context.Context, a *app.App) error {
		printCart(a.Cart.Cart())
		return nil
	})
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -product ID [options]")
	var productID string
	var quantity int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity")
	fs.Parse(args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	withApp(true, func(ctx context.Context, a *app.App) error {
		if err := a.Cart.AddItem(ctx, productID, quantity); err != nil {
			return err
		}
		printSuccess("Added %d × %s", quantity, productID)
		printCart(a.Cart.Cart())
		return nil
	})
}

func runSet(args []string) {
	fs := newFlagSet("set", "set -item ID -qty N [options]")
	var itemID string
	var quantity int
	fs.StringVar(&itemID, "item", "", "Cart item ID (required)")
	fs.IntVar(&quantity, "qty", -1, "New quantity; 0 removes the item (required)")
	fs.Parse(args)

	if itemID == "" || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	withApp(true, func(ctx context.Context, a *app.App) error {
		if err := a.Cart.UpdateQuantity(ctx, itemID, quantity); err != nil {
			return err
		}
		printSuccess("Quantity of %s set to %d", itemID, quantity)
		printCart(a.Cart.Cart())
		return nil
	})
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -item ID [options]")
	var itemID string
	fs.StringVar(&itemID, "item", "", "Cart item ID (required)")
	fs.Parse(args)

	if itemID == "" {
		fs.Usage()
		os.Exit(1)
	}

	withApp(true, func(ctx context.Context, a *app.App) error {
		if err := a.Cart.RemoveItem(ctx, itemID); err != nil {
			return err
		}
		printSuccess("Removed %s", itemID)
		printCart(a.Cart.Cart())
		return nil
	})
}

func runClear(args []string) {
	fs := newFlagSet("clear", "clear [options]")
	fs.Parse(args)

	withApp(false, func(ctx context.Context, a *app.App) error {
		sessionID, err := a.Cart.ClearCart(ctx)
		if err != nil {
			return err
		}
		if quiet {
			fmt.Println(sessionID)
			return nil
		}
		printSuccess("Cart cleared")
		fmt.Printf("  Session: %s%s%s\n", colorCyan, sessionID, colorReset)
		return nil
	})
}

func runConvert(args []string) {
	fs := newFlagSet("convert", "convert -email ADDR [options]")
	var profile model.UserProfile
	fs.StringVar(&profile.Email, "email", "", "Account email (required)")
	fs.StringVar(&profile.FirstName, "first", "", "First name")
	fs.StringVar(&profile.LastName, "last", "", "Last name")
	fs.Parse(args)

	if profile.Email == "" {
		fs.Usage()
		os.Exit(1)
	}

	withApp(true, func(ctx context.Context, a *app.App) error {
		userCart, err := a.Cart.ConvertToUser(ctx, profile)
		if err != nil {
			return err
		}
		if quiet {
			fmt.Println(userCart.UserID)
			return nil
		}
		printSuccess("Cart converted for %s", profile.Email)
		printCart(userCart)
		return nil
	})
}

func runSession(args []string) {
	fs := newFlagSet("session", "session [options]")
	var rotate bool
	fs.BoolVar(&rotate, "rotate", false, "Replace the session id without touching the server cart")
	fs.Parse(args)

	withApp(false, func(ctx context.Context, a *app.App) error {
		var (
			id  string
			err error
		)
		if rotate {
			id, err = a.Sessions.Rotate(ctx)
		} else {
			id, err = a.Sessions.GetOrCreate(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	})
}

// =============================================================================
// CHECKOUT COMMANDS
// =============================================================================

func runCheckout(args []string) {
	fs := newFlagSet("checkout", "checkout [options]")
	var (
		provider  string
		productID string
		quantity  int
		form      checkout.Form
	)
	fs.StringVar(&provider, "provider", "", "Payment provider (default from config)")
	fs.StringVar(&productID, "product", "", "Buy this product now instead of the cart")
	fs.IntVar(&quantity, "qty", 1, "Quantity for -product")
	fs.StringVar(&form.FirstName, "first", "", "First name")
	fs.StringVar(&form.LastName, "last", "", "Last name")
	fs.StringVar(&form.Email, "email", "", "Email")
	fs.StringVar(&form.Phone, "phone", "", "Phone")
	fs.StringVar(&form.Street, "street", "", "Street address")
	fs.StringVar(&form.City, "city", "", "City")
	fs.StringVar(&form.State, "state", "", "State or region")
	fs.StringVar(&form.PostalCode, "postal", "", "Postal code")
	fs.StringVar(&form.Country, "country", "", "Country")
	fs.Parse(args)

	withApp(true, func(ctx context.Context, a *app.App) error {
		// Flags fill in over whatever the last run saved.
		saved, _, err := a.Checkout.RestoreForm(ctx)
		if err != nil {
			return err
		}
		form = mergeForm(saved, form)

		var out *checkout.Outcome
		if productID != "" {
			out, err = a.Checkout.SubmitProduct(ctx, form, provider, productID, quantity)
		} else {
			out, err = a.Checkout.Submit(ctx, form, provider)
		}
		if err != nil {
			return err
		}
		printOutcome(out)
		if out.State == checkout.StateFailed {
			os.Exit(1)
		}
		return nil
	})
}

// mergeForm overlays the non-empty fields of override onto base.
func mergeForm(base, override checkout.Form) checkout.Form {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	return checkout.Form{
		FirstName:  pick(base.FirstName, override.FirstName),
		LastName:   pick(base.LastName, override.LastName),
		Email:      pick(base.Email, override.Email),
		Phone:      pick(base.Phone, override.Phone),
		Street:     pick(base.Street, override.Street),
		City:       pick(base.City, override.City),
		State:      pick(base.State, override.State),
		PostalCode: pick(base.PostalCode, override.PostalCode),
		Country:    pick(base.Country, override.Country),
	}
}

func runReturn(args []string) {
	fs := newFlagSet("return", "return [options]")
	var (
		canceled  bool
		sessionID string
		orderID   string
		reason    string
	)
	fs.BoolVar(&canceled, "canceled", false, "The buyer cancelled on the payment page")
	fs.StringVar(&sessionID, "session-id", "", "Provider checkout session id")
	fs.StringVar(&orderID, "order-id", "", "Order id")
	fs.StringVar(&reason, "reason", "", "Cancellation reason")
	fs.Parse(args)

	q := url.Values{}
	if canceled {
		q.Set(completion.ParamCanceled, "true")
	} else {
		q.Set(completion.ParamSuccess, "true")
	}
	for k, v := range map[string]string{
		completion.ParamSessionID: sessionID,
		completion.ParamOrderID:   orderID,
		completion.ParamReason:    reason,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}

	withApp(false, func(ctx context.Context, a *app.App) error {
		ret, err := a.Returns.OnRedirectReturn(ctx, q)
		if err != nil {
			return err
		}
		printReturn(ret)
		return nil
	})
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(c *model.Cart) {
	if asJSON {
		printJSON(c)
		return
	}
	if quiet {
		fmt.Println(c.Total().StringFixed(2))
		return
	}

	owner := c.SessionID
	if c.UserID != "" {
		owner = "user " + c.UserID
	}
	fmt.Printf("\n%sCart%s %s(%s)%s\n", colorBold, colorReset, colorGray, owner, colorReset)
	if len(c.Items) == 0 {
		fmt.Printf("  %sempty%s\n", colorGray, colorReset)
		return
	}

	items := append([]model.CartItem(nil), c.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Product.Name < items[j].Product.Name })
	for _, it := range items {
		fmt.Printf("  %s%-10s%s %-24s %3d × %8s = %s%s%s\n",
			colorCyan, it.ID, colorReset,
			it.Product.Name, it.Quantity, it.Product.Price.StringFixed(2),
			colorBold, it.LineTotal().StringFixed(2), colorReset,
		)
	}
	fmt.Printf("  %d items, total %s%s%s\n", c.Count(), colorGreen, c.Total().StringFixed(2), colorReset)
}

func printOutcome(out *checkout.Outcome) {
	if asJSON {
		printJSON(out)
		return
	}

	switch out.State {
	case checkout.StateRedirectPending:
		if quiet {
			fmt.Println(out.RedirectURL)
			return
		}
		printWarning("Payment continues on the provider's page")
		fmt.Printf("  Open: %s%s%s\n", colorBlue, out.RedirectURL, colorReset)
		printInfo("Afterwards run: cartctl return -session-id <id>")

	case checkout.StateCompleted:
		if quiet {
			fmt.Println(out.Order.ID)
			return
		}
		printSuccess("Order placed!")
		fmt.Printf("  Order ID: %s%s%s\n", colorGreen, out.Order.ID, colorReset)
		if out.Order.Number != "" {
			fmt.Printf("  Order #:  %s\n", out.Order.Number)
		}
		fmt.Printf("  Total:    %s\n", out.Order.Total.StringFixed(2))
		if out.Payment != nil {
			fmt.Printf("  Payment:  %s (%s)\n", out.Payment.Status, out.Payment.Provider)
		}

	default:
		printError("%s", out.Message)
		keys := make([]string, 0, len(out.FieldErrors))
		for k := range out.FieldErrors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s%s%s: %s\n", colorYellow, k, colorReset, out.FieldErrors[k])
		}
	}
}

func printReturn(ret *completion.Return) {
	if asJSON {
		printJSON(ret)
		return
	}
	if quiet {
		fmt.Println(ret.Status)
		return
	}

	switch ret.Status {
	case completion.ReturnSucceeded:
		printSuccess("Payment completed")
		if ret.OrderID != "" {
			fmt.Printf("  Order ID: %s%s%s\n", colorGreen, ret.OrderID, colorReset)
		}
		if ret.PaymentStatus != "" {
			fmt.Printf("  Payment:  %s\n", ret.PaymentStatus)
		}
		if ret.CartCleared {
			printInfo("Cart cleared; a new guest session has started")
		}
	case completion.ReturnUnpaid:
		printWarning("Payment not completed (%s); the cart is unchanged", ret.PaymentStatus)
	case completion.ReturnCanceled:
		printWarning("Payment cancelled; the cart is unchanged")
		if ret.Reason != "" {
			fmt.Printf("  Reason: %s\n", ret.Reason)
		}
	default:
		printWarning("Return not recognised; nothing changed")
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("Encoding output: %v", err)
	}
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
