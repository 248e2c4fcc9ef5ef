// Package demo builds synthetic loan applications for filling the form.
package demo

import (
	"fmt"

	"loan-decision/internal/models"
	"loan-decision/internal/verdict"
)

var (
	cities    = []string{"Mumbai", "Delhi", "Bangalore", "Chennai", "Pune"}
	loanTerms = []int{12, 24, 36, 48, 60}
)

// Generator produces complete applications. Each profile is either
// strong or weak and every field is sampled from a range biased by that.
type Generator struct {
	rng verdict.Rand
}

func NewGenerator(rng verdict.Rand) *Generator {
	if rng == nil {
		rng = verdict.NewRand()
	}
	return &Generator{rng: rng}
}

// Random flips a coin for the profile strength and generates it.
func (g *Generator) Random() models.Application {
	return g.Generate(g.rng.IntN(2) == 0)
}

// Generate returns an application with a value for every catalog field.
// Strong profiles always clear the rule thresholds.
func (g *Generator) Generate(strong bool) models.Application {
	app := models.Application{
		"Applicant_ID":       fmt.Sprintf("APP-%d", 10000+g.rng.IntN(90000)),
		"Gender":             g.pick("Male", "Female"),
		"Age":                22 + g.rng.IntN(40),
		"Marital_Status":     g.pick("Single", "Married"),
		"Dependents":         g.rng.IntN(4),
		"City_Town":          cities[g.rng.IntN(len(cities))],
		"Residential_Status": g.pick("Owned", "Rented", "Mortgage"),
		"Occupation_Type":    g.pick("Salaried", "Business"),
		"Monthly_Expenses":   (20 + g.rng.IntN(50)) * 1000,
		"Loan_Term":          loanTerms[g.rng.IntN(len(loanTerms))],
		"Loan_Purpose":       g.pick("Home", "Car", "Personal"),
		"Interest_Rate":      fmt.Sprintf("%.1f", 7+g.rng.Float64()*5),
		"Loan_Type":          g.pick("Secured", "Unsecured"),
		"Co_Applicant":       g.pick("No", "Yes"),
	}
	app["Total_Existing_Loan_Amount"] = g.rng.IntN(10) * 100000

	if strong {
		app["Education"] = "Graduate"
		app["Employment_Status"] = "Employed"
		app["Annual_Income"] = (10 + g.rng.IntN(15)) * 100000
		app["Credit_Score"] = 700 + g.rng.IntN(100)
		app["Existing_Loans"] = g.rng.IntN(2)
		app["Outstanding_Debt"] = g.rng.IntN(3) * 100000
		app["Loan_History"] = g.pick("Good", "No History")
		app["Loan_Amount_Requested"] = (5 + g.rng.IntN(20)) * 100000
		app["Bank_Account_History"] = g.pick("Excellent", "Good")
		app["Transaction_Frequency"] = g.pick("High", "Medium")
		app["Default_Risk"] = g.pick("Low", "Medium")
		return app
	}

	app["Education"] = g.pick("Graduate", "Not Graduate")
	app["Employment_Status"] = g.pick("Employed", "Self-Employed")
	app["Annual_Income"] = (5 + g.rng.IntN(10)) * 100000
	app["Credit_Score"] = 550 + g.rng.IntN(150)
	app["Existing_Loans"] = 1 + g.rng.IntN(3)
	app["Outstanding_Debt"] = (2 + g.rng.IntN(4)) * 100000
	app["Loan_History"] = g.pick("Good", "Bad", "No History")
	app["Loan_Amount_Requested"] = (5 + g.rng.IntN(50)) * 100000
	app["Bank_Account_History"] = g.pick("Good", "Average", "Poor")
	app["Transaction_Frequency"] = g.pick("Medium", "Low")
	app["Default_Risk"] = g.pick("Medium", "High")
	return app
}

func (g *Generator) pick(options ...string) string {
	return options[g.rng.IntN(len(options))]
}
