package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Agent turns natural-language requests into proposed actions using the
// Gemini tool-calling API. The agent only proposes: every action it returns
// still passes through the guard and the caller's permission check before
// anything executes.
type Agent struct {
	client *genai.Client
	model  string
}

// NewAgent connects to the Gemini API.
func NewAgent(ctx context.Context, apiKey, model string) (*Agent, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("assistant: gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash-001"
	}
	return &Agent{client: client, model: model}, nil
}

// Close releases the API client.
func (a *Agent) Close() error {
	return a.client.Close()
}

const systemPrompt = `You are the back-office assistant of a restaurant ERP.
Translate the operator's request into exactly one of the declared tools.
Only propose; never claim an action was performed. If no tool fits, answer
in plain text instead of calling a tool.`

// Propose sends the operator's message and maps the first tool call back to
// a typed action. When the model answers in plain text, the action is nil
// and the narration carries the answer.
func (a *Agent) Propose(ctx context.Context, message string) (*Action, string, error) {
	model := a.client.GenerativeModel(a.model)
	model.Tools = []*genai.Tool{{FunctionDeclarations: declarations()}}
	session := model.StartChat()

	resp, err := session.SendMessage(ctx, genai.Text(systemPrompt+"\n\nOPERATOR: "+message))
	if err != nil {
		return nil, "", fmt.Errorf("assistant: gemini request: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", fmt.Errorf("assistant: empty response")
	}
	var narration string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			action, err := actionFromCall(p)
			if err != nil {
				return nil, "", err
			}
			return action, narration, nil
		case genai.Text:
			narration = string(p)
		}
	}
	return nil, narration, nil
}

func declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        "update_inventory",
			Description: "Set the stock quantity of an inventory item in a warehouse.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"item_id":      {Type: genai.TypeInteger, Description: "Inventory item id"},
					"warehouse_id": {Type: genai.TypeInteger, Description: "Warehouse id"},
					"new_qty":      {Type: genai.TypeNumber, Description: "Target quantity"},
					"reason":       {Type: genai.TypeString, Description: "Why the stock is being corrected"},
				},
				Required: []string{"item_id", "warehouse_id", "new_qty", "reason"},
			},
		},
		{
			Name:        "create_menu_item",
			Description: "Add a new item to the menu.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":     {Type: genai.TypeString},
					"category": {Type: genai.TypeString},
					"price":    {Type: genai.TypeNumber},
				},
				Required: []string{"name", "price"},
			},
		},
		{
			Name:        "update_menu_item",
			Description: "Rename, recategorise or toggle availability of a menu item.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"item_id":   {Type: genai.TypeInteger},
					"name":      {Type: genai.TypeString},
					"category":  {Type: genai.TypeString},
					"available": {Type: genai.TypeBoolean},
				},
				Required: []string{"item_id"},
			},
		},
		{
			Name:        "change_price",
			Description: "Change the price of a menu item.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"item_id":   {Type: genai.TypeInteger},
					"new_price": {Type: genai.TypeNumber},
					"reason":    {Type: genai.TypeString},
				},
				Required: []string{"item_id", "new_price"},
			},
		},
		{
			Name:        "create_customer",
			Description: "Register a customer.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":  {Type: genai.TypeString},
					"phone": {Type: genai.TypeString},
					"email": {Type: genai.TypeString},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        "create_user",
			Description: "Register an operator account.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"username": {Type: genai.TypeString},
					"name":     {Type: genai.TypeString},
					"role":     {Type: genai.TypeString},
				},
				Required: []string{"username", "name", "role"},
			},
		},
		{
			Name:        "run_report",
			Description: "Run a read-only report: sales, low_stock or trial_balance.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"report": {Type: genai.TypeString, Description: "sales, low_stock or trial_balance"},
					"from":   {Type: genai.TypeString, Description: "Start date YYYY-MM-DD"},
					"to":     {Type: genai.TypeString, Description: "End date YYYY-MM-DD"},
				},
				Required: []string{"report"},
			},
		},
	}
}

// actionFromCall maps a tool call onto the action union. Arguments arrive as
// generic JSON values, so they are re-marshalled through the typed structs.
func actionFromCall(call genai.FunctionCall) (*Action, error) {
	raw, err := json.Marshal(normalizeArgs(call.Args))
	if err != nil {
		return nil, fmt.Errorf("assistant: encode tool args: %w", err)
	}
	action := &Action{}
	var variant any
	switch call.Name {
	case "update_inventory":
		action.Kind = KindUpdateInventory
		action.UpdateInventory = &UpdateInventoryAction{}
		variant = action.UpdateInventory
	case "create_menu_item":
		action.Kind = KindCreateMenuItem
		action.CreateMenuItem = &CreateMenuItemAction{}
		variant = action.CreateMenuItem
	case "update_menu_item":
		action.Kind = KindUpdateMenuItem
		action.UpdateMenuItem = &UpdateMenuItemAction{}
		variant = action.UpdateMenuItem
	case "change_price":
		action.Kind = KindChangePrice
		action.ChangePrice = &ChangePriceAction{}
		variant = action.ChangePrice
	case "create_customer":
		action.Kind = KindCreateCustomer
		action.CreateCustomer = &CreateCustomerAction{}
		variant = action.CreateCustomer
	case "create_user":
		action.Kind = KindCreateUser
		action.CreateUser = &CreateUserAction{}
		variant = action.CreateUser
	case "run_report":
		action.Kind = KindRunReport
		action.RunReport = &RunReportAction{}
		variant = action.RunReport
	default:
		return nil, fmt.Errorf("assistant: model proposed unknown tool %q", call.Name)
	}
	if err := json.Unmarshal(raw, variant); err != nil {
		return nil, fmt.Errorf("assistant: decode %s args: %w", call.Name, err)
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// normalizeArgs renames the tool-call argument keys to the union's JSON
// field names.
func normalizeArgs(args map[string]any) map[string]any {
	renames := map[string]string{
		"item_id":      "itemId",
		"warehouse_id": "warehouseId",
		"new_qty":      "newQty",
		"new_price":    "newPrice",
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if renamed, ok := renames[k]; ok {
			k = renamed
		}
		out[k] = v
	}
	return out
}
