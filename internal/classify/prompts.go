package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// DefaultSystemPrompt is the classification policy given to the model as its
// system instruction.
const DefaultSystemPrompt = `Você é um agente que classifica transações de extratos bancários brasileiros.

Tarefa:
- Para cada transação do lote, devolva exatamente um objeto na mesma ordem em que foi recebida.
- Não invente, não remova e não junte transações.
- Mantenha date, description, amount e type como recebidos.

Classificação:
- category_id/category_label e subcategory_id/subcategory_label devem vir da lista "categories" das regras.
- Use subcategory_id=null e subcategory_label=null apenas quando nenhuma subcategoria se aplica.
- payment_method é um código de "payment_methods" e payment_method_id é o id correspondente.
- counterparty_normalized é o nome limpo do estabelecimento ou da pessoa.
- movement_kind: spend, income, transfer, invest ou fee.

Flags (0 ou 1):
- is_internal_transfer: movimentação entre contas do próprio titular.
- is_card_bill_payment: pagamento da fatura do cartão de crédito.
- is_investment_aporte: aplicação em investimento.
- is_investment_rendimento: rendimento de investimento.

Responda somente com o JSON do schema, sem Markdown e sem texto adicional.`

// LoadSystemPrompt reads a prompt file, or returns DefaultSystemPrompt when
// path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("read system prompt: %s is empty", path)
	}
	return prompt, nil
}

// buildUserMessage assembles the per-batch user message.
func buildUserMessage(rulesJSON string, batch []domain.ParsedTransaction) (string, error) {
	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return strings.Join([]string{
		"As regras de classificação são:",
		rulesJSON,
		"Classifique o seguinte lote de transações (JSON) conforme as regras do prompt de sistema.",
		"Retorne no schema solicitado (apenas o JSON).",
		fmt.Sprintf("Lote com %d itens:", len(batch)),
		string(payload),
	}, "\n"), nil
}
