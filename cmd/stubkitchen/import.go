package main

import (
	"bufio"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/hammamikhairi/souschef/internal/domain"
)

// Markdown recipe import. Understands the common hand-written shape:
//
//	# Title
//	## Ingredients
//	- 200 grams spaghetti
//	## Steps
//	1. Boil water for 5 minutes.
//
// Anything fancier belongs to the real service's parser.

var (
	amountLineRe = regexp.MustCompile(`^([\d.,/]+)\s+(\w+)\s+(?:of\s+)?(.+)$`)
	stepLineRe   = regexp.MustCompile(`^(?:\d+[.)]|[-*])\s+(.+)$`)
	bulletRe     = regexp.MustCompile(`^[-*]\s+(.+)$`)
	durationRe   = regexp.MustCompile(`(?i)for (?:about )?(\d+)\s*(minutes?|mins?|seconds?|secs?)`)
	servingsRe   = regexp.MustCompile(`(?i)serv(?:es|ings)[:\s]+(\d+)`)
)

func parseMarkdownRecipe(content string) (*domain.Recipe, error) {
	r := &domain.Recipe{Metadata: domain.Metadata{Servings: 2}}
	section := ""

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "# ") && r.Title == "":
			r.Title = strings.TrimSpace(line[2:])
			continue
		case strings.HasPrefix(line, "#"):
			section = classifySection(line)
			continue
		}

		if m := servingsRe.FindStringSubmatch(line); m != nil && section == "" {
			if n, err := strconv.Atoi(m[1]); err == nil {
				r.Metadata.Servings = n
			}
			continue
		}

		switch section {
		case "ingredients":
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				r.Ingredients = append(r.Ingredients, parseIngredientLine(m[1]))
			}
		case "steps":
			if m := stepLineRe.FindStringSubmatch(line); m != nil {
				r.Steps = append(r.Steps, parseStepLine(len(r.Steps)+1, m[1]))
			}
		case "equipment":
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				r.Equipment = append(r.Equipment, m[1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if r.Title == "" {
		return nil, errors.New("no title heading found")
	}
	if len(r.Steps) == 0 {
		return nil, errors.New("no steps found")
	}
	return r, nil
}

func classifySection(heading string) string {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "ingredient"):
		return "ingredients"
	case strings.Contains(h, "step") || strings.Contains(h, "method") ||
		strings.Contains(h, "instruction") || strings.Contains(h, "direction"):
		return "steps"
	case strings.Contains(h, "equipment") || strings.Contains(h, "tool"):
		return "equipment"
	default:
		return ""
	}
}

// parseIngredientLine splits "200 grams spaghetti" into its parts. A
// line with no leading amount becomes an item with amount 1.
func parseIngredientLine(line string) domain.Ingredient {
	if m := amountLineRe.FindStringSubmatch(line); m != nil {
		if amount, ok := parseAmount(m[1]); ok {
			return domain.Ingredient{Item: m[3], Amount: amount, Unit: m[2]}
		}
	}
	return domain.Ingredient{Item: line, Amount: 1}
}

// parseAmount handles "3", "0.5", "1,5" and simple fractions ("1/2").
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", ".")
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// parseStepLine builds a step, attaching a timer when the instruction
// mentions a duration ("boil for 8 minutes").
func parseStepLine(number int, instruction string) domain.Step {
	step := domain.Step{Number: number, Instruction: instruction}
	if m := durationRe.FindStringSubmatch(instruction); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			seconds := n
			if strings.HasPrefix(strings.ToLower(m[2]), "min") {
				seconds = n * 60
			}
			step.Timer = &domain.StepTimer{Duration: seconds, Type: "cooking"}
		}
	}
	return step
}
