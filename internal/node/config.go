package node

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config is the flat key=value config file described in spec §6: a
// [NODE]/[DB]/[API]/[PARENT] sectioned file, parsed with the standard
// library the way the teacher's node.Config is hand-parsed rather than
// pulled from a third-party INI library no repo in the pack depends on.
type Config struct {
	Node   NodeSection
	DB     DBSection
	API    APISection
	Parent ParentSection
}

type NodeSection struct {
	Host       string
	Port       int
	WalletWIF  string
	Mine       bool
}

type DBSection struct {
	Name string
	Host string
	Port int
}

type APISection struct {
	Active bool
	Port   int
	Cores  int
	RPS    int
}

type ParentSection struct {
	Host string
	Port int
}

// DefaultConfig mirrors the teacher's DefaultConfig: sane devnet defaults
// that ValidateConfig accepts unmodified.
func DefaultConfig() Config {
	return Config{
		Node: NodeSection{Host: "0.0.0.0", Port: 8333, Mine: false},
		DB:   DBSection{Name: "chain", Host: "127.0.0.1", Port: 27017},
		API:  APISection{Active: false, Port: 8080, Cores: 1, RPS: 10},
	}
}

// LoadConfig parses r as a sectioned key=value file:
//
//	[NODE]
//	host=0.0.0.0
//	port=8333
//	wallet=<WIF>
//	mine=1
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	scanner := bufio.NewScanner(r)
	section := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToUpper(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("config: line %d: expected key=value", lineNo)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if err := cfg.setField(section, key, value); err != nil {
			return Config{}, fmt.Errorf("config: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads and parses path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}

func (c *Config) setField(section, key, value string) error {
	switch section {
	case "NODE":
		switch key {
		case "host":
			c.Node.Host = value
		case "port":
			return setInt(&c.Node.Port, value)
		case "wallet":
			c.Node.WalletWIF = value
		case "mine":
			return setBool(&c.Node.Mine, value)
		default:
			return fmt.Errorf("unknown NODE key %q", key)
		}
	case "DB":
		switch key {
		case "db_name":
			c.DB.Name = value
		case "db_host":
			c.DB.Host = value
		case "db_port":
			return setInt(&c.DB.Port, value)
		default:
			return fmt.Errorf("unknown DB key %q", key)
		}
	case "API":
		switch key {
		case "active":
			return setBool(&c.API.Active, value)
		case "port":
			return setInt(&c.API.Port, value)
		case "cores":
			return setInt(&c.API.Cores, value)
		case "rps":
			return setInt(&c.API.RPS, value)
		default:
			return fmt.Errorf("unknown API key %q", key)
		}
	case "PARENT":
		switch key {
		case "host":
			c.Parent.Host = value
		case "port":
			return setInt(&c.Parent.Port, value)
		default:
			return fmt.Errorf("unknown PARENT key %q", key)
		}
	default:
		return fmt.Errorf("unknown section %q", section)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", value)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, value string) error {
	switch value {
	case "0":
		*dst = false
	case "1":
		*dst = true
	default:
		return fmt.Errorf("expected 0 or 1, got %q", value)
	}
	return nil
}

// ValidateConfig checks that cfg is internally consistent enough to boot.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Node.Host) == "" {
		return fmt.Errorf("node.host is required")
	}
	if cfg.Node.Port <= 0 || cfg.Node.Port > 65535 {
		return fmt.Errorf("node.port out of range: %d", cfg.Node.Port)
	}
	if cfg.Node.Mine && strings.TrimSpace(cfg.Node.WalletWIF) == "" {
		return fmt.Errorf("node.wallet is required when node.mine=1")
	}
	if cfg.API.Active && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("api.port out of range: %d", cfg.API.Port)
	}
	return nil
}
