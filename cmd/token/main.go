// Command token prints a console bearer token for local development.
//
//	CONSOLE_JWT_SECRET=dev-secret go run ./cmd/token -sub ana@ops -role finance
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/ops-console/api"
)

func main() {
	sub := flag.String("sub", "dev@console", "token subject (staff user)")
	role := flag.String("role", "admin", "console role")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	secret := flag.String("secret", "", "HS256 secret (defaults to CONSOLE_JWT_SECRET)")
	flag.Parse()

	if *secret == "" {
		v := viper.New()
		v.SetEnvPrefix("CONSOLE")
		v.AutomaticEnv()
		*secret = v.GetString("jwt_secret")
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "no secret: pass -secret or set CONSOLE_JWT_SECRET")
		os.Exit(2)
	}

	token, err := api.IssueToken([]byte(*secret), *sub, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
