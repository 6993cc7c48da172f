package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tuhogar-store/core"
)

// Seeds the remote catalog with the demo product set. The reference
// deployment relied on a pre-populated hosted collection; this makes a fresh
// catalog usable immediately.
func main() {
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	skipExisting := flag.Bool("skip-existing", true, "do nothing when the catalog already has products")
	flag.Parse()

	catalog := core.NewHTTPCatalogClient(cfg.CatalogURL)

	if *skipExisting {
		existing, err := catalog.List(ctx)
		if err != nil {
			log.Fatalf("failed to list catalog: %v", err)
		}
		if len(existing) > 0 {
			log.Printf("catalog at %s already has %d products, nothing to do", cfg.CatalogURL, len(existing))
			return
		}
	}

	for _, p := range demoProducts {
		created, err := catalog.Create(ctx, p)
		if err != nil {
			log.Fatalf("failed to create %q: %v", p.Title, err)
		}
		log.Printf("created %q id=%s stock=%d", created.Title, created.ID, created.Stock)
	}
	log.Printf("seeded %d products into %s", len(demoProducts), cfg.CatalogURL)
}

var demoProducts = []core.Product{
	{Title: "Silla Escandinava", Price: 45.99, Description: "Silla de madera clara con respaldo curvo", Category: "sillas", Stock: 12, Image: "https://loremflickr.com/320/240/chair"},
	{Title: "Mesa de Centro Roble", Price: 120.50, Description: "Mesa baja de roble macizo para living", Category: "mesas", Stock: 5, Image: "https://loremflickr.com/320/240/table"},
	{Title: "Lámpara de Pie Nórdica", Price: 60.00, Description: "Lámpara de pie con pantalla de lino", Category: "iluminacion", Stock: 8, Image: "https://loremflickr.com/320/240/lamp"},
	{Title: "Estantería Modular", Price: 89.90, Description: "Estantería de cinco cuerpos ajustables", Category: "almacenaje", Stock: 3, Image: "https://loremflickr.com/320/240/shelf"},
	{Title: "Alfombra Tejida", Price: 35.00, Description: "Alfombra artesanal de yute natural", Category: "decoracion", Stock: 20, Image: "https://loremflickr.com/320/240/rug"},
	{Title: "Sofá Dos Cuerpos", Price: 399.00, Description: "Sofá tapizado en tela gris piedra", Category: "sillas", Stock: 0, Image: "https://loremflickr.com/320/240/sofa"},
}
