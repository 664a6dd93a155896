package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kesh-lab/userpool"
)

func main() {
	var (
		poolID    = flag.String("pool-id", "", "user pool id, <region>_<name>")
		clientID  = flag.String("client-id", "", "app client id")
		region    = flag.String("region", "", "pool region")
		endpoint  = flag.String("endpoint", "", "endpoint override; if empty, derived from region")
		username  = flag.String("username", "", "login id")
		flow      = flag.String("flow", "srp", "auth flow: srp, password, or custom")
		redisAddr = flag.String("redis-addr", "", "redis address for the token cache; if empty, REDIS_ADDR env or in-process cache")
		verbose   = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *poolID == "" || *clientID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "pool-id, client-id, and username are required")
		os.Exit(2)
	}

	password := os.Getenv("USERPOOL_PASSWORD")
	if password == "" && *flow != "custom" {
		fmt.Fprintln(os.Stderr, "set USERPOOL_PASSWORD in the environment")
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg := userpool.Config{
		UserPool: userpool.UserPoolConfig{
			PoolID:   *poolID,
			ClientID: *clientID,
			Region:   *region,
			Endpoint: *endpoint,
		},
		Transport: userpool.TransportConfig{
			HTTPTimeout:    30 * time.Second,
			RetryBaseDelay: 100 * time.Millisecond,
		},
		Device: userpool.DeviceConfig{
			RememberDevices: true,
			NamePrefix:      "userpool-login",
		},
		TokenStore: userpool.TokenStoreConfig{RedisPrefix: "up:"},
	}

	builder := userpool.New().
		WithConfig(cfg).
		WithLogger(logger)

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = client.Close() }()
		builder = builder.WithRedis(client)
		logger.Info().Str("addr", addr).Msg("caching tokens in redis")
	}

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	input := userpool.SignInInput{Username: *username, Password: password}

	var result *userpool.SignInResult
	switch *flow {
	case "srp":
		result, err = engine.SignIn(ctx, input)
	case "password":
		result, err = engine.SignInWithPassword(ctx, input)
	case "custom":
		result, err = engine.SignInWithCustomAuth(ctx, input)
	default:
		fmt.Fprintf(os.Stderr, "unknown flow %q\n", *flow)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-in failed: %v\n", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	for !result.IsSignedIn {
		answer, perr := promptForStep(reader, result.NextStep)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "%v\n", perr)
			os.Exit(1)
		}
		result, err = engine.ConfirmSignIn(ctx, userpool.ConfirmSignInInput{
			Username:          *username,
			ChallengeResponse: answer,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "confirmation failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("signed in as %s\n", *username)
}

func promptForStep(reader *bufio.Reader, step userpool.NextStep) (string, error) {
	switch step.SignInStep {
	case userpool.StepConfirmSignInWithSMSCode:
		fmt.Printf("enter the code sent to %s: ", step.CodeDeliveryDestination)
	case userpool.StepConfirmSignInWithTOTPCode:
		fmt.Print("enter your authenticator code: ")
	case userpool.StepContinueSignInWithMFASelection:
		fmt.Printf("choose an MFA method %v: ", step.AllowedMFATypes)
	case userpool.StepConfirmSignInWithNewPassword:
		fmt.Print("enter a new password: ")
	case userpool.StepConfirmSignInWithCustomChallenge:
		for k, v := range step.AdditionalInfo {
			fmt.Printf("%s: %s\n", k, v)
		}
		fmt.Print("answer: ")
	case userpool.StepResetPassword:
		return "", fmt.Errorf("password reset required; reset it and sign in again")
	case userpool.StepConfirmSignUp:
		return "", fmt.Errorf("account not confirmed; confirm sign-up and try again")
	default:
		return "", fmt.Errorf("cannot continue from step %s", step.SignInStep)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
