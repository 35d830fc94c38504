package registry

import "github.com/bbernstein/maree/internal/models"

type port struct {
	name   string
	siteID string
	slug   string
	lat    float64
	lon    float64
}

type section struct {
	header string
	ports  []port
}

// French coastal ports grouped by coast. Site ids are maree.info's, slugs
// are horaire-maree.fr's.
var sections = []section{
	{
		header: "--- MANCHE / NORD ---",
		ports: []port{
			{"Dunkerque", "2", "Dunkerque", 51.0500, 2.3667},
			{"Calais", "4", "Calais", 50.9667, 1.8500},
			{"Boulogne-sur-Mer", "8", "Boulogne-sur-Mer", 50.7333, 1.6000},
			{"Dieppe", "14", "Dieppe", 49.9333, 1.0833},
			{"Fécamp", "16", "Fecamp", 49.7667, 0.3667},
			{"Le Havre", "18", "Le_Havre", 49.4833, 0.1167},
			{"Honfleur", "20", "Honfleur", 49.4167, 0.2333},
			{"Ouistreham", "24", "Ouistreham", 49.2833, -0.2500},
			{"Cherbourg", "12", "Cherbourg", 49.6500, -1.6333},
			{"Granville", "30", "Granville", 48.8333, -1.6000},
			{"Saint-Malo", "36", "Saint-Malo", 48.6333, -2.0333},
		},
	},
	{
		header: "--- BRETAGNE NORD/OUEST ---",
		ports: []port{
			{"Perros-Guirec", "42", "Perros-Guirec", 48.8167, -3.4500},
			{"Roscoff", "46", "Roscoff", 48.7167, -3.9667},
			{"Brest", "82", "Brest", 48.3833, -4.4833},
			{"Camaret", "84", "Camaret-sur-Mer", 48.2833, -4.6000},
			{"Douarnenez", "88", "Douarnenez", 48.1000, -4.3333},
		},
	},
	{
		header: "--- BRETAGNE SUD ---",
		ports: []port{
			{"Audierne", "90", "Audierne", 48.0167, -4.5333},
			{"Concarneau", "96", "Concarneau", 47.8667, -3.9167},
			{"Lorient", "104", "Lorient", 47.7500, -3.3667},
			{"Quiberon (Port Maria)", "110", "Quiberon", 47.4833, -3.1167},
			{"Vannes", "116", "Vannes", 47.6500, -2.7667},
			{"Le Croisic", "118", "Le_Croisic", 47.3000, -2.5167},
			{"Saint-Nazaire", "119", "Saint-Nazaire", 47.2667, -2.2000},
		},
	},
	{
		header: "--- ATLANTIQUE ---",
		ports: []port{
			{"Pornic", "120", "Pornic", 47.1167, -2.1000},
			{"Noirmoutier", "122", "Noirmoutier-en-l-Ile", 47.0000, -2.2500},
			{"Les Sables-d'Olonne", "121", "Les_Sables-d-Olonne", 46.5000, -1.7833},
			{"La Rochelle", "125", "La_Rochelle", 46.1500, -1.1500},
			{"Rochefort", "128", "Rochefort", 45.9333, -0.9667},
			{"Royan", "132", "Royan", 45.6167, -1.0333},
			{"Arcachon", "136", "Arcachon", 44.6667, -1.1667},
			{"Cap Ferret", "135", "Cap-Ferret", 44.6333, -1.2500},
			{"Bayonne / Boucau", "142", "Boucau", 43.5333, -1.5167},
			{"Biarritz", "144", "Biarritz", 43.4833, -1.5667},
			{"Saint-Jean-de-Luz", "145", "Saint-Jean-de-Luz", 43.3833, -1.6667},
		},
	},
	{
		header: "--- MÉDITERRANÉE ---",
		ports: []port{
			{"Port-Vendres", "156", "Port-Vendres", 42.5167, 3.1000},
			{"Sète", "160", "Sete", 43.4000, 3.7000},
			{"Marseille", "166", "Marseille", 43.3000, 5.3500},
			{"Toulon", "168", "Toulon", 43.1167, 5.9167},
			{"Nice", "174", "Nice", 43.6833, 7.2833},
			{"Ajaccio", "178", "Ajaccio", 41.9167, 8.7333},
			{"Bastia", "180", "Bastia", 42.7000, 9.4500},
		},
	},
}

func build(key func(p port) models.SourceKey) []models.Location {
	var out []models.Location
	for _, s := range sections {
		out = append(out, models.Location{Name: s.header, Region: s.header})
		for _, p := range s.ports {
			k := key(p)
			out = append(out, models.Location{
				Name:        p.name,
				Region:      s.header,
				Key:         &k,
				Coordinates: &models.Coordinates{Latitude: p.lat, Longitude: p.lon},
			})
		}
	}
	return out
}

// MareeInfoPorts lists ports keyed by maree.info site id.
func MareeInfoPorts() []models.Location {
	return build(func(p port) models.SourceKey {
		return models.SourceKey{Kind: models.SourceMareeInfo, SiteID: p.siteID}
	})
}

// HoraireMareeSlugs lists ports keyed by horaire-maree.fr URL slug.
func HoraireMareeSlugs() []models.Location {
	return build(func(p port) models.SourceKey {
		return models.SourceKey{Kind: models.SourceHoraire, Slug: p.slug}
	})
}

// WorldTidesPorts lists ports keyed by coordinates.
func WorldTidesPorts() []models.Location {
	return build(func(p port) models.SourceKey {
		return models.SourceKey{Kind: models.SourceWorldTides, Coordinates: &models.Coordinates{Latitude: p.lat, Longitude: p.lon}}
	})
}
