package classifier

import (
	"fmt"
	"strings"

	"github.com/fyerfyer/siwz-mapper/internal/models"
)

// 上下文文本的截断长度
const contextTruncateLen = 800

// systemPromptBlock 块级分类的系统提示词
// 分类器面向波兰语SIWZ/SWZ医疗保险文档，标签空间与片段级分类一致
const systemPromptBlock = `Jesteś ekspertem w analizie dokumentów SIWZ/SWZ dla ubezpieczeń medycznych OPZ w Polsce.

Twoim zadaniem jest klasyfikacja WIĘKSZYCH BLOKÓW tekstu (sekcji) do DOKŁADNIE JEDNEJ z następujących kategorii:

DOZWOLONE ETYKIETY:
- "irrelevant"       - tekst wprowadzający, prawny, metainformacje (nie opisuje usług ani wariantów)
- "general"          - ogólny opis zakresu, ale nie konkretny wariant ani lista usług
- "variant_header"   - nagłówki wprowadzające konkretne warianty medyczne, np. "Załącznik nr 2 A – WARIANT 1", "WARIANT 2", "Pakiet Rodzina"
- "variant_body"     - listy usług i opisy należące do konkretnego wariantu medycznego (cały zakres świadczeń dla pakietu/wariantu)
- "prophylaxis"      - fragmenty opisujące program profilaktyczny (np. "profilaktyczny przegląd stanu zdrowia")
- "pricing_table"    - tabele/formularze gdzie "Wariant 1-4" to TYLKO kolumny cenowe w ofercie, NIE definicje pakietów medycznych

WAŻNE:
- Pojęcie "blok" oznacza tutaj większą sekcję (często kilka akapitów lub tabelę), a nie pojedynczą linijkę.
- Ten blok może zawierać nagłówek, listę punktów, wiersze tabeli itp.

KLUCZOWE ZASADY DOMENOWE:
1. Słowo "Wariant" / "Pakiet" może występować w dwóch kontekstach:
   a) W OPZ jako rzeczywisty wariant medyczny → "variant_header" lub "variant_body"
   b) W edytowalnych załącznikach/formularzach ofertowych jako etykiety kolumn cenowych → "pricing_table"

2. Sekcje profilaktyki często wyglądają jak zwykłe listy usług, ale semantycznie są częścią "programu profilaktycznego" → muszą mieć etykietę "prophylaxis"

3. Używaj kontekstu (poprzedni i następny blok) do rozróżnienia niejednoznacznych przypadków.

FORMAT WYJŚCIOWY:
MUSISZ zwrócić odpowiedź w ŚCISŁYM formacie JSON:
{
  "block_id": "id_bloku",
  "label": "jedna_z_dozwolonych_etykiet",
  "variant_hint": "numer_lub_nazwa_wariantu_lub_null",
  "is_prophylaxis": true_lub_false,
  "confidence": 0.0_do_1.0,
  "rationale": "krótkie_uzasadnienie_po_polsku"
}

ANTY-HALUCYNACJA:
- Używaj TYLKO tekstu z dostarczonego bloku i kontekstu
- NIE wymyślaj ani nie dodawaj tekstu spoza bloku
- Jeśli nie jesteś pewien, wybierz najlepsze dopasowanie i obniż confidence

Zawsze zwracaj poprawny JSON bez dodatkowego tekstu.`

// retryInstruction 解析失败后追加的更严格的重试指令
const retryInstruction = "\n\nUWAGA: Poprzednia odpowiedź była niepoprawna. " +
	"Musisz zwrócić TYLKO poprawny JSON, bez dodatkowego tekstu, " +
	"markdown ani komentarzy. Zacznij od { i zakończ na }."

// buildBlockUserPrompt 构建块级分类的用户提示词
// 包含前后块的截断文本作为上下文
func buildBlockUserPrompt(block *models.SemanticBlock, prevText, nextText string) string {
	var sb strings.Builder

	sb.WriteString("Sklasyfikuj poniższy BLOK tekstu z dokumentu SIWZ.\n\n")

	if prevText != "" {
		sb.WriteString("POPRZEDNI BLOK (kontekst):\n")
		sb.WriteString(truncate(prevText, contextTruncateLen))
		sb.WriteString("\n\n")
	}

	sb.WriteString("AKTUALNY BLOK (do klasyfikacji):\n")
	sb.WriteString(fmt.Sprintf("ID bloku: %s\n", block.BlockID))
	sb.WriteString(fmt.Sprintf("Zakres stron: %d–%d\n", block.PageStart, block.PageEnd))
	if block.TypeHint != "" {
		sb.WriteString(fmt.Sprintf("Hint typu bloku (layout): %s\n", block.TypeHint))
	}
	sb.WriteString("Tekst bloku:\n")
	sb.WriteString(block.Text)
	sb.WriteString("\n\n")

	if nextText != "" {
		sb.WriteString("NASTĘPNY BLOK (kontekst):\n")
		sb.WriteString(truncate(nextText, contextTruncateLen))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Wybierz DOKŁADNIE JEDNĄ etykietę z listy: " +
		"irrelevant, general, variant_header, variant_body, prophylaxis, pricing_table\n")
	sb.WriteString("Zwróć odpowiedź jako JSON zgodnie ze schematem opisanym w instrukcjach systemowych.")

	return sb.String()
}

// truncate 按字符数截断文本
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
