package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/internal/services"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm/logger"
)

// fieldFile lists custom fields to provision per kind, e.g.
//
//	investor:
//	  - label: Ticket Size
//	    field_type: number
//	    is_required: true
type fieldFile map[models.EntityKind][]services.CreateFieldRequest

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	fieldsPath := flag.String("fields", "", "optional YAML file of custom fields to create")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := models.Open(&cfg.Database, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	fmt.Println("Connected to database successfully!")
	fmt.Println("")

	for _, kind := range []models.EntityKind{models.KindLead, models.KindInvestor} {
		created, err := models.SeedSystemFields(db, kind)
		if err != nil {
			log.Fatalf("Failed to seed %s system fields: %v", kind, err)
		}
		fmt.Printf("%-10s system fields created: %d\n", kind, created)
	}
	if err := models.SeedDefaultData(db); err != nil {
		log.Fatalf("Failed to seed default data: %v", err)
	}

	if *fieldsPath != "" {
		data, err := os.ReadFile(*fieldsPath)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *fieldsPath, err)
		}
		var file fieldFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			log.Fatalf("Failed to parse %s: %v", *fieldsPath, err)
		}

		fieldService := services.NewFieldService(db)
		ctx := context.Background()
		for kind, reqs := range file {
			for i := range reqs {
				field, err := fieldService.CreateField(ctx, kind, &reqs[i])
				switch {
				case errors.Is(err, services.ErrDuplicateFieldName):
					fmt.Printf("skip   %-10s %s (exists)\n", kind, reqs[i].Label)
				case err != nil:
					log.Fatalf("Failed to create %s field %q: %v", kind, reqs[i].Label, err)
				default:
					fmt.Printf("create %-10s %s -> %s\n", kind, field.Label, field.Name)
				}
			}
		}
	}

	fmt.Println("")
	fmt.Printf("%-5s %-10s %-30s %-12s %-8s\n", "ID", "Kind", "Name", "Type", "System")
	fmt.Println("----------------------------------------------------------------------")
	var fields []models.FieldDefinition
	if err := db.Order("entity_kind, sort_order, id").Find(&fields).Error; err != nil {
		log.Fatalf("Failed to list fields: %v", err)
	}
	for _, f := range fields {
		fmt.Printf("%-5d %-10s %-30s %-12s %-8v\n", f.ID, f.EntityKind, f.Name, f.FieldType, f.IsSystem)
	}
}
