// @title           VideoFlow Gin API
// @version         1.0
// @description     AI video marketplace API: creator review workflow, orders and payment callbacks

// @contact.name   API Support
// @contact.email  support@example.com

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token from Keycloak
package main

//go:generate swag init -g main.go -o docs

import "github.com/mautops/videoflow-gin/cmd"

func main() {
	cmd.Execute()
}
