package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage areas, customers and employees",
}

var (
	areaName     string
	areaExternal bool

	customerName  string
	customerEmail string

	employeeInput    service.RegisterEmployeeInput
	employeeRole     string
	employeeChannel  string
	employeeAreasRaw string
)

var areaAddCmd = &cobra.Command{
	Use:   "add-area",
	Short: "Create an area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap(cmd.Context(), bootstrapOptions{requireDatabase: true})
		if err != nil {
			return err
		}
		defer app.Close()

		area := &domain.Area{Name: strings.TrimSpace(areaName), External: areaExternal}
		if area.Name == "" {
			return fmt.Errorf("--name is required")
		}
		if err := app.store.Areas().Create(cmd.Context(), area); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "area %d created\n", area.ID)
		return nil
	},
}

var customerAddCmd = &cobra.Command{
	Use:   "add-customer",
	Short: "Create a customer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap(cmd.Context(), bootstrapOptions{requireDatabase: true})
		if err != nil {
			return err
		}
		defer app.Close()

		customer := &domain.Customer{Name: strings.TrimSpace(customerName), Email: strings.TrimSpace(customerEmail)}
		if customer.Name == "" {
			return fmt.Errorf("--name is required")
		}
		if err := app.store.Customers().Create(cmd.Context(), customer); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "customer %d created\n", customer.ID)
		return nil
	},
}

var employeeAddCmd = &cobra.Command{
	Use:   "add-employee",
	Short: "Register an employee who can log in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input := employeeInput
		input.Role = domain.EmployeeRole(strings.ToUpper(employeeRole))
		if employeeChannel != "" {
			channel := domain.Channel(strings.ToUpper(employeeChannel))
			input.Channel = &channel
		}
		for _, raw := range strings.Split(employeeAreasRaw, ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid area id %q", raw)
			}
			input.AreaIDs = append(input.AreaIDs, id)
		}

		app, err := bootstrap(cmd.Context(), bootstrapOptions{requireDatabase: true})
		if err != nil {
			return err
		}
		defer app.Close()

		employee, err := app.authService().RegisterEmployee(cmd.Context(), input)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "employee %d (%s) created\n", employee.ID, employee.Role)
		return nil
	},
}

func init() {
	areaAddCmd.Flags().StringVar(&areaName, "name", "", "area name")
	areaAddCmd.Flags().BoolVar(&areaExternal, "external", false, "tickets can be derived to this area")

	customerAddCmd.Flags().StringVar(&customerName, "name", "", "customer name")
	customerAddCmd.Flags().StringVar(&customerEmail, "email", "", "customer email")

	f := employeeAddCmd.Flags()
	f.StringVar(&employeeInput.Name, "name", "", "employee name")
	f.StringVar(&employeeInput.Email, "email", "", "login email")
	f.StringVar(&employeeInput.Password, "password", "", "login password")
	f.StringVar(&employeeRole, "role", "", "FRONTLINE, BACKOFFICE or OVERSIGHT")
	f.StringVar(&employeeChannel, "channel", "", "channel a frontline employee is bound to")
	f.StringVar(&employeeAreasRaw, "areas", "", "comma separated area ids of a backoffice employee")
	f.IntVar(&employeeInput.Capacity, "capacity", 0, "maximum open tickets of a backoffice employee, 0 for unbounded")

	directoryCmd.AddCommand(areaAddCmd, customerAddCmd, employeeAddCmd)
}
