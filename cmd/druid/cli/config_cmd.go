package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/druidgo/druid-boot/internal/autoconfigure"
	"github.com/druidgo/druid-boot/internal/config"
	"github.com/druidgo/druid-boot/internal/handler"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage druid configuration",
		Long:  "Initialize a default configuration file or display the bound druid configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force  bool
		path   string
		url    string
		secure bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default druid.yaml configuration file",
		Example: `  druid config init
  druid config init --url postgres://app@localhost:5432/app --secure  # prompts for console credentials`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(path, url, force, secure)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&path, "path", "druid.yaml", "Config file to write")
	cmd.Flags().StringVar(&url, "url", "", "Data source URL (default: in-memory SQLite)")
	cmd.Flags().BoolVar(&secure, "secure", false, "Prompt for stat view console credentials")

	return cmd
}

func runConfigInit(path, url string, force, secure bool) error {
	cfg := config.DefaultFileConfig()
	if url != "" {
		cfg.Spring.Datasource.URL = url
		cfg.Spring.Datasource.DriverClassName = ""
	}

	if secure {
		username, password, err := promptCredentials(bufio.NewReader(os.Stdin), os.Stdout)
		if err != nil {
			return err
		}
		cfg.Spring.Datasource.Druid.WebLoginUsername = username
		cfg.Spring.Datasource.Druid.WebLoginPassword = password
	}

	if err := config.WriteConfig(path, cfg, force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Edit the file to point at your database, then run 'druid serve'.")
	return nil
}

// promptCredentials reads a console username from in and a password from the
// terminal, asking twice for the password.
func promptCredentials(in *bufio.Reader, out io.Writer) (string, string, error) {
	fmt.Fprint(out, "Console username: ")
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", "", fmt.Errorf("read username: %w", err)
	}
	username := strings.TrimSpace(line)
	if username == "" {
		return "", "", errors.New("console username must not be empty")
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", "", errors.New("--secure needs a terminal to read the password")
	}

	fmt.Fprint(out, "Console password: ")
	pwBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(out, "Confirm password: ")
	confirmBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	if string(pwBytes) != string(confirmBytes) {
		return "", "", errors.New("passwords do not match")
	}
	if len(pwBytes) == 0 {
		return "", "", errors.New("console password must not be empty")
	}
	return username, string(pwBytes), nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the bound druid configuration",
		Long:  "Show the bound data source settings, the druid schema with defaults applied, its flat property projection, the console URL mapping and whether the druid data source would be activated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), viper.GetViper())
		},
	}

	return cmd
}

func runConfigShow(w io.Writer, v *viper.Viper) error {
	configFile := v.ConfigFileUsed()
	if configFile != "" {
		fmt.Fprintf(w, "Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(w, "Config file: (none found, using defaults)")
	}
	fmt.Fprintln(w)

	outcome := autoconfigure.ActivationCondition()(v)
	state := "active"
	if !outcome.Match {
		state = "inactive"
	}
	fmt.Fprintf(w, "Activation: %s (%s)\n\n", state, outcome.Message)

	base, err := config.BindDataSourceProperties(v)
	if err != nil {
		return err
	}
	druid, err := config.BindDruidProperties(v)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Data source:")
	fmt.Fprintf(w, "  name:            %s\n", base.Name)
	fmt.Fprintf(w, "  url:             %s\n", base.URL)
	fmt.Fprintf(w, "  username:        %s\n", base.Username)
	fmt.Fprintf(w, "  password:        %s\n", mask(base.Password))
	fmt.Fprintf(w, "  driverClassName: %s\n", base.DriverClassName)
	fmt.Fprintln(w)

	shown := *druid
	shown.WebLoginPassword = mask(shown.WebLoginPassword)
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s:\n", config.DruidPrefix)
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Data source properties:")
	props := druid.ToProperties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s=%s\n", k, props[k])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Stat view console: %s\n", autoconfigure.URLMapping(druid.Path))
	params := autoconfigure.StatViewInitParams(druid)
	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for k := range params {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			val := params[k]
			if k == handler.ParamLoginPassword {
				val = mask(val)
			}
			fmt.Fprintf(w, "  %s=%s\n", k, val)
		}
	}
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
