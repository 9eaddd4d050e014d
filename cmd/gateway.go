package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/database"
	"github.com/kozaktomas/attendance-engine/internal/gateway"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Fingerprint device commands",
	Long:  `Commands for talking to the fingerprint sensor device.`,
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the device status",
	Args:  cobra.NoArgs,
	RunE:  runGatewayStatus,
}

var gatewayEnrollCmd = &cobra.Command{
	Use:   "enroll <fingerprint-id>",
	Short: "Enroll a finger on the sensor under an id",
	Long: `Start enrollment on the device under the given sensor id. When --person-id
is given, the id is also stored on the person once the device confirms.

Examples:
  attendance-engine gateway enroll 12 --name "Ana Núñez" --reg-no 2024-0012 --person-id 41`,
	Args: cobra.ExactArgs(1),
	RunE: runGatewayEnroll,
}

var gatewayDisplayCmd = &cobra.Command{
	Use:   "display <message>",
	Short: "Show a message on the device screen",
	Args:  cobra.ExactArgs(1),
	RunE:  runGatewayDisplay,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.AddCommand(gatewayStatusCmd, gatewayEnrollCmd, gatewayDisplayCmd)

	gatewayEnrollCmd.Flags().String("name", "", "Name shown on the device during enrollment")
	gatewayEnrollCmd.Flags().String("reg-no", "", "Registration number sent to the device")
	gatewayEnrollCmd.Flags().Int64("person-id", 0, "Person to link the sensor id to (0 = do not link)")
	gatewayEnrollCmd.Flags().String("kind", string(database.KindRegular), "Kind of the linked person: regular or test")
}

// newGatewayClient builds a device client from cfg without opening storage.
func newGatewayClient(cfg *config.Config) (*gateway.Client, error) {
	url := cfg.Gateway.BaseURL()
	if url == "" {
		return nil, errors.New("fingerprint gateway not configured: set gateway.host or ESP32_IP")
	}
	return gateway.NewClient(url, cfg.Gateway.Timeout, nil), nil
}

func runGatewayStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gw, err := newGatewayClient(cfg)
	if err != nil {
		return err
	}

	status, err := gw.Status(context.Background())
	if err != nil {
		return fmt.Errorf("gateway %s: %w", gw.BaseURL(), err)
	}
	return outputJSON(status)
}

func runGatewayEnroll(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid fingerprint id %q", args[0])
	}

	kind := database.PersonKind(mustGetString(cmd, "kind"))
	if kind != database.KindRegular && kind != database.KindTest {
		return fmt.Errorf("invalid kind %q: must be regular or test", kind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	personID := mustGetInt64(cmd, "person-id")
	var assigner database.FingerprintAssigner
	if personID > 0 {
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		if assigner, err = database.GetFingerprintAssigner(ctx); err != nil {
			return err
		}
	}

	gw, err := newGatewayClient(cfg)
	if err != nil {
		return err
	}

	req := gateway.EnrollRequest{
		ID:            id,
		StudentName:   mustGetString(cmd, "name"),
		ReferenceCode: mustGetString(cmd, "reg-no"),
	}
	fmt.Printf("Place the finger on the sensor (id %d)...\n", id)
	if err := gw.Enroll(ctx, req); err != nil {
		return err
	}
	fmt.Printf("Fingerprint %d enrolled on the device\n", id)

	if assigner == nil {
		return nil
	}
	person := database.PersonKey{Kind: kind, PersonID: personID}
	if err := assigner.AssignFingerprint(ctx, person, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%s person %d not found", kind, personID)
		}
		return fmt.Errorf("link fingerprint %d: %w", id, err)
	}
	fmt.Printf("Linked fingerprint %d to %s person %d\n", id, kind, personID)
	return nil
}

func runGatewayDisplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gw, err := newGatewayClient(cfg)
	if err != nil {
		return err
	}
	return gw.Display(context.Background(), args[0])
}
