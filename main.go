package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/linkmux/linkmux/linkmux-srv/config"
	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
	"github.com/linkmux/linkmux/linkmux-srv/proxy"
	"github.com/linkmux/linkmux/linkmux-srv/stats"
)

var version string

func main() {
	cfg, configPath := parseFlagsAndConfig()
	runProxy(cfg, configPath)
}

// parseFlagsAndConfig handles CLI flags, environment, logging, and config loading.
func parseFlagsAndConfig() (cfg *config.Config, configPath string) {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	versionShortFlag := flag.Bool("v", false, "Print version and exit (shorthand)")
	configPathPtr := flag.String("config", "", "Path to configuration file (supports .json and .yaml formats)")
	envfile := flag.String("envfile", "", "Path to env file to load environment variables")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *versionFlag || *versionShortFlag {
		if version == "" {
			version = "dev"
		}
		fmt.Println("linkmux version:", version)
		os.Exit(0)
	}

	if *envfile != "" {
		if err := loadEnvFile(*envfile); err != nil {
			logger.Fatal("Failed to load envfile: %v", err)
		}
		logger.Info("Loaded environment variables from %s", *envfile)
	}

	cfg, err := config.LoadConfig(*configPathPtr)
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	logger.SetLevel(logger.GetLevelFromString(cfg.LogLevel))
	if *debugMode {
		logger.SetLevel(logger.DEBUG)
		logger.Debug("Debug logging enabled")
	}

	logger.Info("Starting linkmux proxy server")
	if *configPathPtr != "" {
		logger.Debug("Using configuration file: %s", *configPathPtr)
	}
	logger.Debug("Listen address: %s", cfg.ListenAddress())
	logger.Debug("Max connections: %d", cfg.MaxConcurrentConnections)

	return cfg, *configPathPtr
}

// runProxy starts and manages the proxy server, including signal handling and reloads.
func runProxy(cfg *config.Config, configPath string) {
	if cfg.LogDir != "" {
		path, err := logger.OpenLogFile(cfg.LogDir)
		if err != nil {
			logger.Fatal("Failed to open log file: %v", err)
		}
		logger.Info("Logging requests to: %s", path)
	}

	if len(cfg.Interfaces) == 0 {
		if err := interactiveSetup(cfg); err != nil {
			logger.Fatal("Interface setup failed: %v", err)
		}
	}

	proxyInstance, err := buildProxy(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize proxy: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	startProxy := func(p *proxy.Server) {
		go func() {
			logger.Info("Starting proxy server...")
			if err := p.Start(); err != nil {
				logger.Fatal("Proxy server error: %v", err)
			}
		}()
	}

	startProxy(proxyInstance)
	printClientHint(cfg)
	currentCfg := cfg

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("Received SIGHUP: reloading configuration...")
			if configPath == "" {
				logger.Info("No config file in use; nothing to reload.")
				continue
			}
			newCfg, err := config.LoadConfig(configPath)
			if err != nil {
				logger.Error("Failed to reload config: %v (keeping current config)", err)
				continue
			}
			if len(newCfg.Interfaces) == 0 {
				newCfg.Interfaces = currentCfg.Interfaces
			}
			if !config.HasChanged(currentCfg, newCfg) {
				logger.Info("Config unchanged after reload; not restarting proxy.")
				continue
			}
			logger.Info("Config changed. Restarting proxy...")
			if err := proxyInstance.Stop(); err != nil {
				logger.Error("Error stopping proxy for reload: %v", err)
			}
			if err := proxyInstance.Collector().Close(); err != nil {
				logger.Error("Error closing stats collector: %v", err)
			}
			proxyInstance, err = buildProxy(newCfg)
			if err != nil {
				logger.Fatal("Failed to reinitialize proxy: %v", err)
			}
			startProxy(proxyInstance)
			currentCfg = newCfg
			logger.Info("Proxy restarted with new configuration.")
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("Received signal %v, shutting down proxy server...", sig)
			if err := proxyInstance.Stop(); err != nil {
				logger.Error("Error during shutdown: %v", err)
			}
			if err := proxyInstance.Collector().Close(); err != nil {
				logger.Error("Error closing stats collector: %v", err)
			}
			if err := logger.CloseLogFile(); err != nil {
				logger.Error("Error closing log file: %v", err)
			}
			logger.Info("Proxy server shutdown complete")
			return
		}
	}
}

// buildProxy assembles the selection engine, statistics collector and
// server from a loaded configuration.
func buildProxy(cfg *config.Config) (*proxy.Server, error) {
	interfaces := make([]*netiface.Interface, 0, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		interfaces = append(interfaces, netiface.NewInterface(ic.Name, ic.IP))
	}
	engine, err := netiface.NewEngine(interfaces)
	if err != nil {
		return nil, err
	}

	factory := stats.NewCollectorFactory()
	collector, err := factory.CreateCollectorFromConfig(cfg)
	if err != nil {
		logger.Error("Failed to initialize statistics collector: %v", err)
		collector = stats.NewDummyCollector()
	}

	return proxy.NewServer(cfg, engine, collector), nil
}

// interactiveSetup prompts for a port and up to two interfaces when the
// configuration names none.
func interactiveSetup(cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("\nProxy Server Configuration")
	fmt.Println("-------------------------")

	for {
		fmt.Printf("Enter port number (default %d): ", cfg.Listen.Port)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read port: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		port, err := strconv.Atoi(line)
		if err != nil {
			fmt.Println("Invalid port number")
			continue
		}
		if port < 1024 || port > 65535 {
			fmt.Println("Port must be between 1024 and 65535")
			continue
		}
		cfg.Listen.Port = port
		break
	}

	candidates, err := netiface.Discover()
	if err != nil {
		return err
	}

	fmt.Println("\nAvailable Network Interfaces:")
	fmt.Println("-----------------------------")
	for i, c := range candidates {
		warning := ""
		if c.Limited {
			warning = " (Limited connectivity)"
		}
		fmt.Printf("%d. %s (%s)%s\n", i+1, c.Name, c.IP, warning)
	}

	if len(candidates) == 1 {
		fmt.Println("\nWARNING: Only one interface available. The proxy will work but without load balancing.")
		only := candidates[0]
		cfg.Interfaces = []config.InterfaceConfig{{Name: only.Name, IP: only.IP}}
		logger.Info("Selected single interface: %s (%s)", only.Name, only.IP)
		return nil
	}

	fmt.Println("\nSelect interface(s) to use (enter numbers separated by space):")
	fmt.Println("Note: You can select the same interface twice if needed")

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read selection: %w", err)
		}
		selections := strings.Fields(line)
		if len(selections) == 0 {
			fmt.Println("Please select at least one interface")
			continue
		}
		if len(selections) > 2 {
			fmt.Println("Please select maximum 2 interfaces")
			continue
		}
		if len(selections) == 1 {
			selections = append(selections, selections[0])
		}

		var picked []config.InterfaceConfig
		valid := true
		for _, sel := range selections {
			idx, err := strconv.Atoi(sel)
			if err != nil {
				fmt.Println("Invalid input. Please enter numbers only")
				valid = false
				break
			}
			if idx < 1 || idx > len(candidates) {
				fmt.Println("Invalid selection. Please try again")
				valid = false
				break
			}
			c := candidates[idx-1]
			picked = append(picked, config.InterfaceConfig{Name: c.Name, IP: c.IP})
			logger.Info("Selected interface: %s (%s)", c.Name, c.IP)
		}
		if !valid {
			continue
		}
		cfg.Interfaces = picked
		return nil
	}
}

// printClientHint prints the browser proxy-configuration walkthrough.
func printClientHint(cfg *config.Config) {
	fmt.Println("\nTo configure Chrome:")
	fmt.Println("1. Go to Settings -> System -> Open proxy settings")
	fmt.Printf("2. Set HTTP and HTTPS proxy to: %s\n", cfg.ListenAddress())
	fmt.Println("\nPress Ctrl+C to stop the server")
}

// loadEnvFile reads a .env-style file and sets environment variables
func loadEnvFile(path string) error {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid file path: %w", err)
		}
		cleanPath = absPath
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Error("Error closing env file: %v", closeErr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if setErr := os.Setenv(key, val); setErr != nil {
			logger.Error("Error setting environment variable %s: %v", key, setErr)
		}
	}
	return scanner.Err()
}
