package setup

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/ledgerwallet/config"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

// DefaultFilename file written by the wizard.
const DefaultFilename = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers values collected by the wizard.
type Answers struct {
	APIURL            string
	Passphrase        string
	StoreSeed         bool
	Seed              string
	PollInterval      string
	FeeDebounce       string
	ListenAddr        string
	MovementsPageSize string
	RateLimit         string
}

func defaultAnswers() Answers {
	return Answers{
		APIURL:            "https://api.ledger.example",
		PollInterval:      "30s",
		FeeDebounce:       "500ms",
		ListenAddr:        ":8080",
		MovementsPageSize: "15",
		RateLimit:         "10",
	}
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LEDGER WALLET SETUP"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes DefaultFilename.
func RunTUI() error {
	a := defaultAnswers()
	var confirm bool

	screen("STEP 1: NETWORK")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the wallet at a ledger API.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Ledger API URL").
				Value(&a.APIURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Network passphrase").
				Description("Leave empty to fetch it from the API").
				Value(&a.Passphrase),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: SIGNER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Store the seed in the config file?").
				Description(fmt.Sprintf("Otherwise export %s before starting", config.SeedEnv)).
				Value(&a.StoreSeed),
		),
	).Run()
	if err != nil {
		return err
	}
	if a.StoreSeed {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Seed").
					Description("S... encoded secret seed").
					EchoMode(huh.EchoModePassword).
					Value(&a.Seed).
					Validate(validateSeed),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	screen("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Balances reload interval").
				Description("Duration string (e.g. 30s, 1m)").
				Value(&a.PollInterval).
				Validate(validateDuration),
			huh.NewInput().
				Title("Fee quote debounce").
				Value(&a.FeeDebounce).
				Validate(validateDuration),
			huh.NewInput().
				Title("API requests per second").
				Value(&a.RateLimit).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 4: WEB")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.ListenAddr),
			huh.NewInput().
				Title("Movements page size").
				Value(&a.MovementsPageSize).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf("API: %s\nSeed stored: %t\nReload: %s\nDebounce: %s\nListen: %s\n",
		a.APIURL, a.StoreSeed, a.PollInterval, a.FeeDebounce, a.ListenAddr)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := Write(DefaultFilename, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", DefaultFilename)))
	return nil
}

// Build converts wizard answers into the yaml config layout.
func Build(a Answers) (config.ConfigTmp, error) {
	pollInterval, err := time.ParseDuration(a.PollInterval)
	if err != nil {
		return config.ConfigTmp{}, fmt.Errorf("invalid reload interval: %w", err)
	}
	feeDebounce, err := time.ParseDuration(a.FeeDebounce)
	if err != nil {
		return config.ConfigTmp{}, fmt.Errorf("invalid fee debounce: %w", err)
	}
	pageSize, err := decimal.NewFromString(a.MovementsPageSize)
	if err != nil {
		return config.ConfigTmp{}, fmt.Errorf("invalid page size: %w", err)
	}

	cfg := config.ConfigTmp{
		APIURL:            a.APIURL,
		NetworkPassphrase: a.Passphrase,
		FeeDebounce:       feeDebounce,
		PollInterval:      pollInterval,
		ListenAddr:        a.ListenAddr,
		MovementsPageSize: int(pageSize.IntPart()),
		RateLimitStr:      a.RateLimit,
	}
	if a.StoreSeed {
		cfg.Seed = a.Seed
	}
	return cfg, nil
}

// Write renders the answers as yaml into filename.
func Write(filename string, a Answers) error {
	cfg, err := Build(a)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	// the file may hold a secret seed
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func validateSeed(s string) error {
	if !strkey.IsValid(strkey.VersionByteSeed, s) {
		return fmt.Errorf("not a valid seed")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}
